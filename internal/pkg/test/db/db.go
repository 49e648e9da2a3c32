// Package testdb starts throwaway Postgres and Redis containers for
// integration tests.
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:18-alpine"
	redisImage    = "redis:8.4-alpine"

	postgresPort nat.Port = "5432/tcp"
	redisPort    nat.Port = "6379/tcp"
)

type PostgresStartRequest struct {
	User     string
	Password string
	DB       string
}

// DSN builds a lib/pq connection string for the started container.
func (r PostgresStartRequest) DSN(res StartResponse) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		res.Host, res.Port, r.User, r.Password, r.DB)
}

type StartResponse struct {
	Host string
	Port string
}

func (r StartResponse) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// StartPostgres exits the test binary when the container cannot start.
func StartPostgres(ctx context.Context, cfg PostgresStartRequest) (StartResponse, func()) {
	return start(ctx, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{string(postgresPort)},
		Env: map[string]string{
			"POSTGRES_USER":     cfg.User,
			"POSTGRES_PASSWORD": cfg.Password,
			"POSTGRES_DB":       cfg.DB,
		},
		WaitingFor: wait.ForListeningPort(postgresPort),
	}, postgresPort)
}

func StartRedis(ctx context.Context) (StartResponse, func()) {
	return start(ctx, testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{string(redisPort)},
		WaitingFor:   wait.ForListeningPort(redisPort),
	}, redisPort)
}

func start(ctx context.Context, req testcontainers.ContainerRequest, port nat.Port) (StartResponse, func()) {
	cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("start %s: %v", req.Image, err)
	}

	stop := func() {
		if err := cont.Terminate(context.Background()); err != nil {
			log.Printf("terminate %s: %v", req.Image, err)
		}
	}

	host, err := cont.Host(ctx)
	if err != nil {
		stop()
		log.Fatalf("%s host: %v", req.Image, err)
	}

	mapped, err := cont.MappedPort(ctx, port)
	if err != nil {
		stop()
		log.Fatalf("%s port: %v", req.Image, err)
	}

	return StartResponse{Host: host, Port: mapped.Port()}, stop
}

// RunMigrations resets the schema by running every down migration and then
// every up migration found in folder.
func RunMigrations(t *testing.T, db *sql.DB, folder string) {
	t.Helper()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("migrate driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, "test", driver)
	if err != nil {
		t.Fatalf("new migrator: %v", err)
	}

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate down: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate up: %v", err)
	}
}
