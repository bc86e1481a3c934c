// Package postgres implements the ledger store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fd1az/crossarb/business/ledger/app"
	"github.com/fd1az/crossarb/business/ledger/domain"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ app.Store = (*Store)(nil)

// Store implements app.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrations returns the embedded migration file names in apply order.
func Migrations() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("postgres: read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// RunMigrations applies the embedded migrations that have not been applied
// yet, tracking them in schema_migrations.
func (s *Store) RunMigrations(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("postgres: create schema_migrations table: %w", err)
	}

	names, err := Migrations()
	if err != nil {
		return err
	}

	for _, name := range names {
		var exists bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)",
			name,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("postgres: check migration %s: %w", name, err)
		}
		if exists {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", name, err)
		}

		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return fmt.Errorf("exec: %w", err)
			}
			if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
				return fmt.Errorf("record: %w", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("postgres: migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) SaveTrack(ctx context.Context, t domain.Track) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracks (id, asset, amount, profit, venue, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.Asset, t.Amount, t.Profit, t.Venue, t.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert track: %w", err)
	}
	return nil
}

func (s *Store) SaveTrade(ctx context.Context, t domain.Trade) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades (id, tradeable, currency, sell_amount, source_venue, target_venue, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.Tradeable, t.Currency, t.SellAmount, t.SourceVenue, t.TargetVenue, t.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade: %w", err)
	}
	return nil
}

// SaveFills inserts fills in one batch. Fills already stored for the same
// (venue, order, trade id) are skipped, so reconciliation rounds can
// resubmit them.
func (s *Store) SaveFills(ctx context.Context, fills []venueDomain.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO fills (
			venue_id, order_id, trade_id, tradeable, currency, side,
			price, amount, fee, fee_asset, executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		) ON CONFLICT (venue_id, order_id, trade_id) DO NOTHING`

	for _, f := range fills {
		batch.Queue(query,
			f.VenueID, f.OrderID, f.TradeID, f.Market.Tradeable, f.Market.Currency, string(f.Side),
			f.Price, f.Amount, f.Fee, f.FeeAsset, f.ExecutedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range fills {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert fill batch item %d: %w", i, err)
		}
	}
	return nil
}

func (s *Store) SaveProfitLoss(ctx context.Context, pl domain.ProfitLoss) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profit_loss (
			id, source_venue, target_venue, tradeable, currency,
			cost, revenue, residual, profit, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		pl.ID, pl.SourceVenue, pl.TargetVenue, pl.Tradeable, pl.Currency,
		pl.Cost, pl.Revenue, pl.Residual, pl.Profit, pl.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert profit/loss: %w", err)
	}
	return nil
}
