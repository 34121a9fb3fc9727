package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"groupdecide/internal/domain"
	"groupdecide/internal/repository"
	"groupdecide/internal/service"
	"groupdecide/pkg/database"
	"groupdecide/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	// Get command
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate [drop|up|reset|seed]")
		os.Exit(1)
	}

	command := os.Args[1]

	ctx := context.Background()
	db, err := database.NewPostgresDB(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	switch command {
	case "drop":
		if err := dropTables(ctx, db); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "up":
		if err := db.ApplySchema(ctx); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "reset":
		if err := db.ResetSchema(ctx); err != nil {
			log.Fatalf("Failed to reset schema: %v", err)
		}
		fmt.Println("✅ Schema recreated successfully")

	case "seed":
		if err := seedData(ctx, db); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("✅ Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

// dropTables runs the drop in a single transaction
func dropTables(ctx context.Context, db *database.PostgresDB) error {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return pgx.BeginFunc(ctx, conn.Conn(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, database.DropSchema)
		return err
	})
}

// seedData creates a demo decision in the options phase through the engine
// so the seeded rows satisfy every lifecycle rule.
func seedData(ctx context.Context, db *database.PostgresDB) error {
	svc := service.NewDecisionService(repository.NewPostgresStore(db), logger.NewNop())

	d, err := svc.CreateDecision(ctx, "demo-organizer", domain.CreateDecisionInput{
		Title:       "Team dinner",
		Description: "Where should we go on Friday?",
		Category:    "food",
		LockTime:    time.Now().Add(72 * time.Hour),
		Mechanism:   domain.MechanismPointAllocation,
	})
	if err != nil {
		return fmt.Errorf("create decision: %w", err)
	}

	for _, user := range []string{"demo-alice", "demo-bob"} {
		if _, err := svc.JoinDecision(ctx, d.ID, user); err != nil {
			return fmt.Errorf("join %s: %w", user, err)
		}
	}

	if _, err := svc.SubmitConstraint(ctx, d.ID, "demo-alice", domain.ConstraintInput{
		Type:  domain.ConstraintBudgetMax,
		Value: []byte(`{"max": 40}`),
	}); err != nil {
		return fmt.Errorf("submit constraint: %w", err)
	}

	if _, err := svc.AdvancePhase(ctx, d.ID, "demo-organizer", service.PhaseChangeRequest{ExpectedPhase: domain.PhaseConstraints}); err != nil {
		return fmt.Errorf("advance: %w", err)
	}

	price := func(v float64) *float64 { return &v }
	drafts := []domain.OptionDraft{
		{Title: "Taqueria", Metadata: domain.OptionMetadata{Price: price(18)}},
		{Title: "Ramen bar", Metadata: domain.OptionMetadata{Price: price(25)}},
		{Title: "Steakhouse", Metadata: domain.OptionMetadata{Price: price(65)}},
	}
	for _, draft := range drafts {
		if _, err := svc.SubmitOption(ctx, d.ID, "demo-bob", draft); err != nil {
			return fmt.Errorf("submit option %q: %w", draft.Title, err)
		}
	}

	fmt.Printf("Seeded decision %s\n", d.ID)
	return nil
}
