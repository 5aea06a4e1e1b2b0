package migrations

import (
	"context"
	"fmt"

	casbinbunadapter "github.com/castellan/iamcore/internal/auth/bunadapter"
	"github.com/castellan/iamcore/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20250101000001, down_20250101000001)
}

// up_20250101000001 creates the core tables: users, casbin_rules,
// model_configs, token_pairs, event_outbox.
func up_20250101000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating users table...")
	_, err := db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating casbin_rules table...")
	_, err = db.NewCreateTable().
		Model((*casbinbunadapter.CasbinRule)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create casbin_rules table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_casbin_rules_ptype ON casbin_rules(ptype)`)
	if err != nil {
		return fmt.Errorf("failed to create casbin_rules ptype index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating model_configs table...")
	_, err = db.NewCreateTable().
		Model((*models.ModelConfig)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create model_configs table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_model_configs_status ON model_configs(status)`)
	if err != nil {
		return fmt.Errorf("failed to create model_configs status index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating token_pairs table...")
	_, err = db.NewCreateTable().
		Model((*models.TokenPair)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create token_pairs table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_token_pairs_user_id ON token_pairs(user_id)`)
	if err != nil {
		return fmt.Errorf("failed to create token_pairs user_id index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating event_outbox table...")
	_, err = db.NewCreateTable().
		Model((*models.OutboxEvent)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create event_outbox table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_event_outbox_aggregate ON event_outbox(aggregate_type, aggregate_id, id)`)
	if err != nil {
		return fmt.Errorf("failed to create event_outbox aggregate index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20250101000001 drops all core tables in reverse order.
func down_20250101000001(ctx context.Context, db *bun.DB) error {
	tables := []string{
		"event_outbox",
		"token_pairs",
		"model_configs",
		"casbin_rules",
		"users",
	}

	dropSQL := "DROP TABLE IF EXISTS %s"
	if IsPostgreSQL(db) {
		dropSQL = "DROP TABLE IF EXISTS %s CASCADE"
	}

	for _, table := range tables {
		fmt.Printf(" [down] dropping %s table...", table)
		_, err := db.Exec(fmt.Sprintf(dropSQL, table))
		if err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
		fmt.Println(" OK")
	}

	return nil
}
