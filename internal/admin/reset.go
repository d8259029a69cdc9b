// Package admin provides administrative operations for database management.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/esg/internal/database"
)

// ResetTimeout is the maximum duration for database reset operations.
const ResetTimeout = 30 * time.Second

// DataTables lists every table an ingestion run writes to.
var DataTables = []string{
	database.TableCompanyESG,
	database.TableNews,
	database.TableCompanyReports,
}

// TxBeginner starts a transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ResetAll empties every data table in one transaction and restarts the id
// sequences. This is a destructive operation - use with caution.
func ResetAll(ctx context.Context, db TxBeginner) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := runResets(ctx, resetSteps(tx, DataTables)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	slog.Info("data tables reset", "tables", DataTables)
	return nil
}

type resetFn func(ctx context.Context) error

func resetSteps(tx pgx.Tx, tables []string) []resetFn {
	steps := make([]resetFn, 0, len(tables))
	for _, table := range tables {
		stmt := "TRUNCATE TABLE " + pgx.Identifier{table}.Sanitize() + " RESTART IDENTITY"
		steps = append(steps, func(ctx context.Context) error {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
			return nil
		})
	}
	return steps
}

// runResets stops at the first failing step.
func runResets(ctx context.Context, resets []resetFn) error {
	for _, reset := range resets {
		if err := reset(ctx); err != nil {
			return err
		}
	}
	return nil
}
