package testcontainer

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB is an handle on a running single-node MongoDB replica set container.
type MongoDB struct {
	*mongodb.MongoDBContainer

	URI string
}

// NewMongoDB creates and starts a new MongoDB container, configured as
// a single-node replica set to support transactions.
// Terminate the container once done.
func NewMongoDB(ctx context.Context) (*MongoDB, error) {
	container, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	if err != nil {
		return nil, fmt.Errorf("testcontainer.NewMongoDB: failed to run new container, %w", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		return nil, fmt.Errorf("testcontainer.NewMongoDB: failed to get connection string, %w", err)
	}

	return &MongoDB{MongoDBContainer: container, URI: uri}, nil
}

// Client returns a new client connected to the container.
func (m *MongoDB) Client(ctx context.Context) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.URI).SetDirect(true))
	if err != nil {
		return nil, fmt.Errorf("testcontainer.MongoDB.Client: failed to connect, %w", err)
	}

	return client, nil
}
