package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/business/ledger/domain"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
)

// dsnEnv points the store tests at a scratch database. Each test gets its
// own schema, dropped on cleanup.
const dsnEnv = "CROSSARB_TEST_POSTGRES_DSN"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	ctx := context.Background()

	schema := "ledger_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	admin, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close(context.Background())
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	s := NewStore(pool)
	if err := s.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return s, pool
}

func count(t *testing.T, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestStore_SaveFillsEmpty(t *testing.T) {
	// No statement is sent for an empty batch.
	if err := NewStore(nil).SaveFills(context.Background(), nil); err != nil {
		t.Errorf("SaveFills(nil) = %v", err)
	}
}

func TestStore_RunMigrationsIsIdempotent(t *testing.T) {
	s, pool := newTestStore(t)

	if err := s.RunMigrations(context.Background()); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}
	if n := count(t, pool, "schema_migrations"); n != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", n)
	}
}

func TestStore_Writes(t *testing.T) {
	s, pool := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	track := domain.Track{ID: uuid.NewString(), Asset: "BTC", Amount: d("0.5"), Profit: d("1.25"), Venue: "beta", At: at}
	for range 2 {
		if err := s.SaveTrack(ctx, track); err != nil {
			t.Fatalf("SaveTrack: %v", err)
		}
	}
	if n := count(t, pool, "tracks"); n != 1 {
		t.Errorf("tracks = %d, want 1 after saving the same id twice", n)
	}
	var profit decimal.Decimal
	if err := pool.QueryRow(ctx, "SELECT profit FROM tracks WHERE id = $1", track.ID).Scan(&profit); err != nil {
		t.Fatalf("read track: %v", err)
	}
	if !profit.Equal(d("1.25")) {
		t.Errorf("track profit = %s, want 1.25", profit)
	}

	trade := domain.Trade{ID: uuid.NewString(), Tradeable: "BTC", Currency: "USD", SellAmount: d("0.5"), SourceVenue: "alpha", TargetVenue: "beta", At: at}
	if err := s.SaveTrade(ctx, trade); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}
	if n := count(t, pool, "trades"); n != 1 {
		t.Errorf("trades = %d, want 1", n)
	}

	m := venueDomain.NewMarket("BTC", "USD")
	fills := []venueDomain.Fill{
		{TradeID: "1", OrderID: "9", VenueID: "beta", Market: m, Side: venueDomain.SideSell, Price: d("102"), Amount: d("0.25"), Fee: d("0.01"), FeeAsset: "USD", ExecutedAt: at},
		{TradeID: "2", OrderID: "9", VenueID: "beta", Market: m, Side: venueDomain.SideSell, Price: d("101.5"), Amount: d("0.25"), Fee: d("0.01"), FeeAsset: "USD", ExecutedAt: at},
	}
	// Reconciliation rounds resubmit the same fills.
	for range 2 {
		if err := s.SaveFills(ctx, fills); err != nil {
			t.Fatalf("SaveFills: %v", err)
		}
	}
	if n := count(t, pool, "fills"); n != 2 {
		t.Errorf("fills = %d, want 2", n)
	}
	var side string
	var price decimal.Decimal
	if err := pool.QueryRow(ctx, "SELECT side, price FROM fills WHERE trade_id = '2'").Scan(&side, &price); err != nil {
		t.Fatalf("read fill: %v", err)
	}
	if side != string(venueDomain.SideSell) || !price.Equal(d("101.5")) {
		t.Errorf("fill = %s @ %s", side, price)
	}

	pl := domain.ProfitLoss{
		ID: uuid.NewString(), SourceVenue: "alpha", TargetVenue: "beta", Tradeable: "BTC", Currency: "USD",
		Cost: d("50"), Revenue: d("50.85"), Residual: d("-0.1"), Profit: d("0.75"), At: at,
	}
	if err := s.SaveProfitLoss(ctx, pl); err != nil {
		t.Fatalf("SaveProfitLoss: %v", err)
	}
	var residual decimal.Decimal
	if err := pool.QueryRow(ctx, "SELECT residual, profit FROM profit_loss WHERE id = $1", pl.ID).Scan(&residual, &profit); err != nil {
		t.Fatalf("read profit/loss: %v", err)
	}
	if !residual.Equal(d("-0.1")) || !profit.Equal(d("0.75")) {
		t.Errorf("profit/loss residual %s profit %s", residual, profit)
	}
}
