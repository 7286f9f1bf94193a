package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"healthwire/internal/persistence"
)

// NewMigrateCmd creates the migrate command for database migrations
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage database schema migrations.

Applied versions are tracked in the schema_migrations table and new
migrations are applied in version order, each in its own transaction.

Examples:
  healthwire migrate up
  healthwire migrate status`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context())
		},
	})

	return cmd
}

func runMigrateUp(ctx context.Context) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := persistence.NewMigrationManager(db).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if applied == 0 {
		fmt.Println(valueStyle.Render("Database schema is up to date"))
		return nil
	}
	fmt.Println(valueStyle.Render(fmt.Sprintf("Applied %d migration(s)", applied)))
	return nil
}

func runMigrateStatus(ctx context.Context) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	statuses, err := persistence.NewMigrationManager(db).Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Println("No migrations found")
		return nil
	}

	pending := 0
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		state := "applied"
		if !st.Applied {
			state = "pending"
			pending++
		}
		rows = append(rows, []string{strconv.Itoa(st.Version), state, st.Description})
	}

	fmt.Println(renderTable([]string{"Version", "Status", "Description"}, rows))
	fmt.Printf("\nApplied: %d | Pending: %d | Total: %d\n", len(statuses)-pending, pending, len(statuses))
	if pending > 0 {
		fmt.Println(warnStyle.Render("Run 'healthwire migrate up' to apply pending migrations"))
	}
	return nil
}
