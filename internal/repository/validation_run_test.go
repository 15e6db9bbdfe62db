package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/crossdoc-check-mcp-server/internal/database"
	"github.com/crossdoc-check-mcp-server/internal/domain"
)

// generateTestPassword creates a secure random password for test databases
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a default test password if random generation fails
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) (*database.DB, func()) {
	ctx := context.Background()

	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := database.Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    testPassword,
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: time.Minute * 30,
		SSLMode:     "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(ctx, config, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}

	databaseURL := "postgres://testuser:" + testPassword + "@" + host + ":" + port.Port() + "/testdb?sslmode=disable"
	migrator, err := database.NewMigrator(databaseURL, "../../migrations", logger)
	if err != nil {
		t.Fatalf("Failed to create migrator: %v", err)
	}

	if err := migrator.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		migrator.Close()
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}

	return db, cleanup
}

func sampleRun() *domain.ValidationRunRecord {
	return &domain.ValidationRunRecord{
		ID:            uuid.New().String(),
		RequestID:     "req-1",
		DocumentTypes: []string{"protocol", "sap"},
		Issues: []domain.Issue{
			{
				Code:     "PRIMARY_ENDPOINT_DRIFT",
				Severity: domain.SeverityError,
				Category: domain.CategoryProtocolSAP,
				Message:  "Primary endpoint differs between Protocol and SAP",
				Locations: []domain.Location{
					{DocumentType: domain.DocTypeProtocol, BlockID: "prot-ep-1"},
					{DocumentType: domain.DocTypeSAP, BlockID: "sap-ep-1"},
				},
			},
		},
		Summary: domain.ValidationSummary{
			Total: 1,
			Error: 1,
		},
		ProcessingTimeMS: 42,
	}
}

func TestValidationRunRepository_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewValidationRunRepository(db.Pool, logger)

	run := sampleRun()
	ctx := context.Background()

	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("Failed to create validation run: %v", err)
	}

	retrieved, err := repo.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve validation run: %v", err)
	}

	if retrieved.ID != run.ID {
		t.Errorf("Expected ID %s, got %s", run.ID, retrieved.ID)
	}
	if retrieved.Summary.Error != 1 {
		t.Errorf("Expected 1 error in summary, got %d", retrieved.Summary.Error)
	}
	if len(retrieved.Issues) != 1 {
		t.Fatalf("Expected 1 issue, got %d", len(retrieved.Issues))
	}
	if retrieved.Issues[0].Code != "PRIMARY_ENDPOINT_DRIFT" {
		t.Errorf("Expected issue code PRIMARY_ENDPOINT_DRIFT, got %s", retrieved.Issues[0].Code)
	}
	if retrieved.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set by the database")
	}
}

func TestValidationRunRepository_GetMissing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewValidationRunRepository(db.Pool, logger)

	_, err := repo.GetByID(context.Background(), uuid.New().String())
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestValidationRunRepository_ListAndCount(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewValidationRunRepository(db.Pool, logger)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, sampleRun()); err != nil {
			t.Fatalf("Failed to create validation run: %v", err)
		}
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Failed to count validation runs: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 runs, got %d", count)
	}

	runs, err := repo.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("Failed to list validation runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("Expected 2 runs from limited list, got %d", len(runs))
	}
}

func TestValidationRunRepository_Delete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewValidationRunRepository(db.Pool, logger)

	ctx := context.Background()
	run := sampleRun()
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("Failed to create validation run: %v", err)
	}

	if err := repo.Delete(ctx, run.ID); err != nil {
		t.Fatalf("Failed to delete validation run: %v", err)
	}

	if err := repo.Delete(ctx, run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound on second delete, got %v", err)
	}
}
