package prices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second

	sqliteBusyTimeoutMs = 5000
)

type dialect struct {
	name   string
	schema string
	// numbered placeholders ($1, $2) instead of ?
	numbered bool
}

var (
	sqliteDialect = dialect{
		name: "sqlite",
		schema: `
			CREATE TABLE IF NOT EXISTS prices (
				id    INTEGER PRIMARY KEY AUTOINCREMENT,
				name  TEXT    NOT NULL,
				price INTEGER NOT NULL
			)`,
	}
	postgresDialect = dialect{
		name: "postgres",
		schema: `
			CREATE TABLE IF NOT EXISTS prices (
				id    BIGSERIAL PRIMARY KEY,
				name  TEXT      NOT NULL,
				price BIGINT    NOT NULL
			)`,
		numbered: true,
	}
)

func (d dialect) rebind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// DBStore is the database/sql backed Store shared by the SQLite and
// PostgreSQL backends.
type DBStore struct {
	db *sql.DB
	d  dialect
}

// OpenSQLite opens (creating if needed) the SQLite file at path and ensures
// the prices table exists.
func OpenSQLite(ctx context.Context, path string) (*DBStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, sqliteBusyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	return open(ctx, db, sqliteDialect)
}

// OpenPostgres connects through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string) (*DBStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return open(ctx, db, postgresDialect)
}

func open(ctx context.Context, db *sql.DB, d dialect) (*DBStore, error) {
	s := &DBStore{db: db, d: d}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DBStore) Dialect() string { return s.d.name }

func (s *DBStore) Close() error {
	return s.db.Close()
}

func (s *DBStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return classify(s.db.PingContext(ctx))
	})
}

func (s *DBStore) InitSchema(ctx context.Context) error {
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, s.d.schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("init %s schema: %w", s.d.name, classify(err))
	}
	return nil
}

func (s *DBStore) ListAll(ctx context.Context) ([]PricedItem, error) {
	return s.list(ctx, `SELECT id, name, price FROM prices ORDER BY id ASC`)
}

func (s *DBStore) ListPage(ctx context.Context, offset, limit int) ([]PricedItem, error) {
	if err := checkPage(offset, limit); err != nil {
		return nil, err
	}
	return s.list(ctx, `
		SELECT id, name, price
		FROM prices
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
}

func (s *DBStore) list(ctx context.Context, q string, args ...any) ([]PricedItem, error) {
	var out []PricedItem

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, s.d.rebind(q), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]PricedItem, 0, 16)
		for rows.Next() {
			var it PricedItem
			if err := rows.Scan(&it.ID, &it.Name, &it.Price); err != nil {
				return err
			}
			out = append(out, it)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s *DBStore) Get(ctx context.Context, id int64) (PricedItem, bool, error) {
	var it PricedItem

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, s.d.rebind(`
			SELECT id, name, price
			FROM prices
			WHERE id = ?
		`), id).Scan(&it.ID, &it.Name, &it.Price)
	})

	if errors.Is(err, sql.ErrNoRows) {
		return PricedItem{}, false, nil
	}
	if err != nil {
		return PricedItem{}, false, classify(err)
	}
	return it, true, nil
}

func (s *DBStore) Insert(ctx context.Context, name string, price int64) (PricedItem, error) {
	var it PricedItem

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, s.d.rebind(`
			INSERT INTO prices (name, price)
			VALUES (?, ?)
			RETURNING id, name, price
		`), name, price).Scan(&it.ID, &it.Name, &it.Price)
	})

	if err != nil {
		return PricedItem{}, classify(err)
	}
	return it, nil
}

func (s *DBStore) Exists(ctx context.Context, name string, price int64) (bool, error) {
	var found bool

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, s.d.rebind(`
			SELECT EXISTS (
				SELECT 1 FROM prices WHERE name = ? AND price = ?
			)
		`), name, price).Scan(&found)
	})

	if err != nil {
		return false, classify(err)
	}
	return found, nil
}

func (s *DBStore) Update(ctx context.Context, id int64, name string, price int64) (PricedItem, bool, error) {
	var it PricedItem

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, s.d.rebind(`
			UPDATE prices
			SET name = ?, price = ?
			WHERE id = ?
			RETURNING id, name, price
		`), name, price, id).Scan(&it.ID, &it.Name, &it.Price)
	})

	if errors.Is(err, sql.ErrNoRows) {
		return PricedItem{}, false, nil
	}
	if err != nil {
		return PricedItem{}, false, classify(err)
	}
	return it, true, nil
}

func (s *DBStore) Delete(ctx context.Context, id int64) (bool, error) {
	var n int64

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, s.d.rebind(`DELETE FROM prices WHERE id = ?`), id)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})

	if err != nil {
		return false, classify(err)
	}
	return n > 0, nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

// classify marks driver errors that mean "try again later" with
// ErrUnavailable. Everything else is returned as is.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	return err
}
