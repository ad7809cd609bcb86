package testcontainer

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/testcontainers/testcontainers-go/modules/gcloud"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// FirestoreProjectID is the project id used by the Firestore emulator.
const FirestoreProjectID = "eventsourcing-test"

// Firestore is an handle on a running Firestore emulator container.
type Firestore struct {
	*gcloud.GCloudContainer
}

// NewFirestore creates and starts a new Firestore emulator container.
// Terminate the container once done.
func NewFirestore(ctx context.Context) (*Firestore, error) {
	container, err := gcloud.RunFirestore(ctx,
		"gcr.io/google.com/cloudsdktool/cloud-sdk:367.0.0-emulators",
		gcloud.WithProjectID(FirestoreProjectID),
	)
	if err != nil {
		return nil, fmt.Errorf("testcontainer.NewFirestore: failed to run new container, %w", err)
	}

	return &Firestore{GCloudContainer: container}, nil
}

// Client returns a new Firestore client connected to the emulator.
func (f *Firestore) Client(ctx context.Context) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, FirestoreProjectID,
		option.WithEndpoint(f.URI),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		option.WithoutAuthentication(),
	)
	if err != nil {
		return nil, fmt.Errorf("testcontainer.Firestore.Client: failed to create client, %w", err)
	}

	return client, nil
}
