package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/quantfold/backtestd/internal/core"
)

const barsSchema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol TEXT NOT NULL,
	date   TEXT NOT NULL,
	open   REAL NOT NULL,
	high   REAL NOT NULL,
	low    REAL NOT NULL,
	close  REAL NOT NULL,
	volume INTEGER NOT NULL,
	PRIMARY KEY (symbol, date)
);
CREATE TABLE IF NOT EXISTS series (
	symbol TEXT NOT NULL,
	start  TEXT NOT NULL,
	end    TEXT NOT NULL,
	PRIMARY KEY (symbol, start, end)
);`

// SQLiteCache is a read-through disk cache of daily bars backed by SQLite.
// Unlike the per-run Cache it is shared by all runs in the process and is
// safe for concurrent use. The series table records which (symbol, range)
// requests have been fully persisted, so partial overlaps still go upstream.
type SQLiteCache struct {
	upstream Provider
	db       *sql.DB
	mu       sync.Mutex
}

// NewSQLiteCache opens (or creates) the cache database at dbPath.
func NewSQLiteCache(upstream Provider, dbPath string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	if _, err := db.Exec(barsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &SQLiteCache{upstream: upstream, db: db}, nil
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// Name returns the upstream provider name.
func (c *SQLiteCache) Name() string {
	return c.upstream.Name()
}

// Fetch returns bars for [start, end], reading from disk when the exact
// range was persisted before and falling back to upstream otherwise.
func (c *SQLiteCache) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]core.Bar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	startDay, endDay := Day(start), Day(end)

	cached, err := c.haveSeries(ctx, symbol, startDay, endDay)
	if err != nil {
		return nil, fmt.Errorf("querying cache index: %w", err)
	}
	if cached {
		return c.readBars(ctx, symbol, startDay, endDay)
	}

	bars, err := c.upstream.Fetch(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	if err := c.writeBars(ctx, symbol, startDay, endDay, bars); err != nil {
		// Cache write failure is not fatal; the fetch itself succeeded.
		return bars, nil
	}
	return bars, nil
}

func (c *SQLiteCache) haveSeries(ctx context.Context, symbol string, start, end time.Time) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM series WHERE symbol = ? AND start = ? AND end = ?`,
		symbol, start.Format("2006-01-02"), end.Format("2006-01-02"),
	).Scan(&n)
	return n > 0, err
}

func (c *SQLiteCache) readBars(ctx context.Context, symbol string, start, end time.Time) ([]core.Bar, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT date, open, high, low, close, volume FROM bars
		 WHERE symbol = ? AND date >= ? AND date <= ? ORDER BY date`,
		symbol, start.Format("2006-01-02"), end.Format("2006-01-02"),
	)
	if err != nil {
		return nil, fmt.Errorf("reading cached bars: %w", err)
	}
	defer rows.Close()

	var bars []core.Bar
	for rows.Next() {
		var (
			dateStr string
			b       core.Bar
		)
		if err := rows.Scan(&dateStr, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scanning cached bar: %w", err)
		}
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing cached date %q: %w", dateStr, err)
		}
		b.Symbol = symbol
		b.Date = date.UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("symbol %s in cache", symbol))
	}
	return bars, nil
}

func (c *SQLiteCache) writeBars(ctx context.Context, symbol string, start, end time.Time, bars []core.Bar) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, b := range bars {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO bars (symbol, date, open, high, low, close, volume)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			symbol, b.Date.Format("2006-01-02"), b.Open, b.High, b.Low, b.Close, b.Volume,
		); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO series (symbol, start, end) VALUES (?, ?, ?)`,
		symbol, start.Format("2006-01-02"), end.Format("2006-01-02"),
	); err != nil {
		return err
	}

	return tx.Commit()
}
