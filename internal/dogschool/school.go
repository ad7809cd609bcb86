package dogschool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/go-eventsourcing/eventsourcing/aggregate"
	"github.com/go-eventsourcing/eventsourcing/aggregate/snapshot"
	"github.com/go-eventsourcing/eventsourcing/application"
	"github.com/go-eventsourcing/eventsourcing/command"
	"github.com/go-eventsourcing/eventsourcing/notification"
	"github.com/go-eventsourcing/eventsourcing/query"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// DefaultNamespace is the storage namespace Dog Event Streams are recorded under.
const DefaultNamespace = "dogs"

// Namespaces returns the application.Namespaces configuration for the School,
// using the specified namespace for the Dog aggregate type.
func Namespaces(namespace string) application.Namespaces {
	return application.Namespaces{Type.Name: namespace}
}

// Option customizes a School.
type Option func(*School)

// WithClock sets the clock used to timestamp Domain Events.
func WithClock(clock func() time.Time) Option {
	return func(s *School) { s.clock = clock }
}

// WithIDGenerator sets the generator of new Dog ids.
func WithIDGenerator(generate func() uuid.UUID) Option {
	return func(s *School) { s.newID = generate }
}

// WithSnapshots enables Dog snapshots, recorded in the store according to the policy.
func WithSnapshots(store snapshot.Store, policy snapshot.Policy) Option {
	return func(s *School) {
		s.repositoryOptions = append(s.repositoryOptions,
			aggregate.WithSnapshots[*Dog](store, policy, SnapshotSerde),
		)
	}
}

// School is the dog school Application.
type School struct {
	app               *application.Application
	clock             func() time.Time
	newID             func() uuid.UUID
	repositoryOptions []aggregate.RepositoryOption

	registerDog command.Handler[RegisterDog]
	addTrick    command.Handler[AddTrick]
	getDog      query.Handler[GetDog, View]
}

// NewSchool returns a School hosted by the specified Application,
// which must have a namespace configured for the Dog aggregate type.
func NewSchool(app *application.Application, opts ...Option) (*School, error) {
	school := &School{
		app:   app,
		clock: time.Now,
		newID: uuid.New,
	}

	for _, opt := range opts {
		opt(school)
	}

	dogs, err := application.Repository(app, Type, school.repositoryOptions...)
	if err != nil {
		return nil, fmt.Errorf("dogschool.NewSchool: failed to create dog repository, %w", err)
	}

	school.registerDog = RegisterDogHandler{Clock: school.clock, DogRepository: dogs}
	school.addTrick = AddTrickHandler{Clock: school.clock, DogRepository: dogs}
	school.getDog = GetDogHandler{DogRepository: dogs}

	return school, nil
}

// RegisterDog registers a new Dog with the specified name, returning its id.
func (s *School) RegisterDog(ctx context.Context, name string) (uuid.UUID, error) {
	id := s.newID()

	if err := s.registerDog.Handle(ctx, command.ToEnvelope(RegisterDog{ID: id, DogName: name})); err != nil {
		return uuid.Nil, fmt.Errorf("dogschool.School.RegisterDog: %w", err)
	}

	return id, nil
}

// AddTrick teaches a trick to the registered Dog.
func (s *School) AddTrick(ctx context.Context, id uuid.UUID, trick string) error {
	if err := s.addTrick.Handle(ctx, command.ToEnvelope(AddTrick{DogID: id, Trick: trick})); err != nil {
		return fmt.Errorf("dogschool.School.AddTrick: %w", err)
	}

	return nil
}

// GetDog returns the current state of the registered Dog.
func (s *School) GetDog(ctx context.Context, id uuid.UUID) (View, error) {
	view, err := s.getDog.Handle(ctx, query.ToEnvelope(GetDog{ID: id}))
	if err != nil {
		return View{}, fmt.Errorf("dogschool.School.GetDog: %w", err)
	}

	return view, nil
}

// SelectNotifications returns the Notifications with id >= start, at most limit.
func (s *School) SelectNotifications(ctx context.Context, start version.SequenceNumber, limit int) ([]notification.Notification, error) {
	notifications, err := s.app.Notifications().Select(ctx, start, limit)
	if err != nil {
		return nil, fmt.Errorf("dogschool.School.SelectNotifications: %w", err)
	}

	return notifications, nil
}

// LatestNotification returns the id of the latest Notification recorded,
// or zero when nothing has been recorded yet.
func (s *School) LatestNotification(ctx context.Context) (version.SequenceNumber, error) {
	latest, err := s.app.Notifications().Max(ctx)
	if err != nil {
		return 0, fmt.Errorf("dogschool.School.LatestNotification: %w", err)
	}

	return latest, nil
}
