//go:build integration

// Package testutil starts throwaway service containers for integration tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"voeventdb/pkg/database"
	redispkg "voeventdb/pkg/redis"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

const startTimeout = 90 * time.Second

func start(t *testing.T, req testcontainers.ContainerRequest) (testcontainers.Container, string) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start %s", req.Image)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	return container, host
}

// Postgres starts postgres:16-alpine and returns a migrated connection.
func Postgres(t *testing.T) *gorm.DB {
	t.Helper()
	container, host := start(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "voeventdb",
			"POSTGRES_PASSWORD": "voeventdb",
			"POSTGRES_DB":       "voeventdb",
		},
		// The server restarts once after initdb.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(startTimeout),
	})
	port, err := container.MappedPort(context.Background(), "5432/tcp")
	require.NoError(t, err)

	db, err := database.Connect(database.Config{
		Host:     host,
		Port:     port.Port(),
		User:     "voeventdb",
		Password: "voeventdb",
		DBName:   "voeventdb",
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func Redis(t *testing.T) *redis.Client {
	t.Helper()
	container, host := start(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(startTimeout),
	})
	port, err := container.MappedPort(context.Background(), "6379/tcp")
	require.NoError(t, err)

	client, err := redispkg.Connect(context.Background(), redispkg.Config{Host: host, Port: port.Port()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// NATS starts a nats server and returns its client URL.
func NATS(t *testing.T) string {
	t.Helper()
	container, host := start(t, testcontainers.ContainerRequest{
		Image:        "nats:2.10-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp").WithStartupTimeout(startTimeout),
	})
	port, err := container.MappedPort(context.Background(), "4222/tcp")
	require.NoError(t, err)
	return "nats://" + host + ":" + port.Port()
}
