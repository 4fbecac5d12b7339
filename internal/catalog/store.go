package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store persists the catalog in a local SQLite file. It is the durable copy
// the refresh job replaces; processes read it into an Index at startup.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

// OpenStore opens the SQLite database at path, applies pragmas and runs the
// schema migrations.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set sqlite pragmas: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load catalog migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("init migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run catalog migrations: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// LoadItems implements Source.
func (s *Store) LoadItems(ctx context.Context) ([]Item, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT variant_sku, product_sku, tier_1, tier_2, tier_3,
		       us_base_fee, us_additional_fee, eu_base_fee, eu_additional_fee,
		       row_base_fee, row_additional_fee
		FROM catalog_items
		ORDER BY variant_sku`)
	if err != nil {
		return nil, fmt.Errorf("query catalog items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []Item
	for rows.Next() {
		var (
			it                           Item
			usBase, usAdd, euBase, euAdd sql.NullFloat64
			rowBase, rowAdd              sql.NullFloat64
		)
		if err := rows.Scan(&it.VariantSKU, &it.ProductSKU, &it.Tier1, &it.Tier2, &it.Tier3,
			&usBase, &usAdd, &euBase, &euAdd, &rowBase, &rowAdd); err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		it.USBaseFee = nullableFloat(usBase)
		it.USAdditionalFee = nullableFloat(usAdd)
		it.EUBaseFee = nullableFloat(euBase)
		it.EUAdditionalFee = nullableFloat(euAdd)
		it.ROWBaseFee = nullableFloat(rowBase)
		it.ROWAdditionalFee = nullableFloat(rowAdd)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog items: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("catalog store is empty")
	}
	return items, nil
}

// ReplaceAll swaps the stored catalog for items inside one transaction.
// Readers observe either the old or the new catalog.
func (s *Store) ReplaceAll(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return errors.New("refusing to replace catalog with zero items")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_items`); err != nil {
		return fmt.Errorf("clear catalog items: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_items (
			variant_sku, product_sku, tier_1, tier_2, tier_3,
			us_base_fee, us_additional_fee, eu_base_fee, eu_additional_fee,
			row_base_fee, row_additional_fee
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare catalog insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.VariantSKU, it.ProductSKU, it.Tier1, it.Tier2, it.Tier3,
			nullFloat(it.USBaseFee), nullFloat(it.USAdditionalFee),
			nullFloat(it.EUBaseFee), nullFloat(it.EUAdditionalFee),
			nullFloat(it.ROWBaseFee), nullFloat(it.ROWAdditionalFee)); err != nil {
			return fmt.Errorf("insert catalog item %s: %w", it.VariantSKU, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO catalog_sync_runs (item_count, synced_at) VALUES (?, ?)`,
		len(items), s.now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record catalog sync run: %w", err)
	}
	return tx.Commit()
}

// LastSync returns the time and size of the most recent replacement.
func (s *Store) LastSync(ctx context.Context) (time.Time, int, error) {
	var (
		raw   string
		count int
	)
	err := s.DB.QueryRowContext(ctx, `SELECT synced_at, item_count FROM catalog_sync_runs ORDER BY id DESC LIMIT 1`).Scan(&raw, &count)
	if err != nil {
		return time.Time{}, 0, err
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("parse sync time: %w", err)
	}
	return at, count, nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
