package prices

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PRICEWATCH_TEST_POSTGRES_DSN enables the postgres backend in the store tests.
const postgresDSNEnv = "PRICEWATCH_TEST_POSTGRES_DSN"

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemStore())
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "prices.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})

	t.Run("postgres", func(t *testing.T) {
		dsn := os.Getenv(postgresDSNEnv)
		if dsn == "" {
			t.Skipf("%s not set", postgresDSNEnv)
		}
		s, err := OpenPostgres(context.Background(), dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		_, err = s.db.Exec(`TRUNCATE prices RESTART IDENTITY`)
		require.NoError(t, err)
		fn(t, s)
	})
}

func TestStore_InsertGetExists(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		ok, err := s.Exists(ctx, "Mug", 300)
		require.NoError(t, err)
		assert.False(t, ok)

		it, err := s.Insert(ctx, "Mug", 300)
		require.NoError(t, err)
		assert.Positive(t, it.ID)
		assert.Equal(t, "Mug", it.Name)
		assert.Equal(t, int64(300), it.Price)

		got, found, err := s.Get(ctx, it.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, it, got)

		ok, err = s.Exists(ctx, "Mug", 300)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Exists(ctx, "Mug", 301)
		require.NoError(t, err)
		assert.False(t, ok)

		_, found, err = s.Get(ctx, it.ID+100)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestStore_DuplicatePairsGetDistinctIDs(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		a, err := s.Insert(ctx, "Mug", 300)
		require.NoError(t, err)
		b, err := s.Insert(ctx, "Mug", 300)
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestStore_ListOrderAndPaging(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		empty, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		var ids []int64
		for i, name := range []string{"a", "b", "c", "d", "e"} {
			it, err := s.Insert(ctx, name, int64(i+1))
			require.NoError(t, err)
			ids = append(ids, it.ID)
		}

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i, it := range all {
			assert.Equal(t, ids[i], it.ID)
		}

		page, err := s.ListPage(ctx, 1, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "b", page[0].Name)
		assert.Equal(t, "c", page[1].Name)

		page, err = s.ListPage(ctx, 4, 10)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "e", page[0].Name)

		page, err = s.ListPage(ctx, 5, 10)
		require.NoError(t, err)
		assert.Empty(t, page)

		page, err = s.ListPage(ctx, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, page)

		_, err = s.ListPage(ctx, -1, 2)
		assert.ErrorIs(t, err, ErrInvalidPage)
		_, err = s.ListPage(ctx, 0, -2)
		assert.ErrorIs(t, err, ErrInvalidPage)
	})
}

func TestStore_UpdateDelete(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		it, err := s.Insert(ctx, "Mug", 300)
		require.NoError(t, err)

		upd, found, err := s.Update(ctx, it.ID, "Cup", 250)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, PricedItem{ID: it.ID, Name: "Cup", Price: 250}, upd)

		got, _, err := s.Get(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, upd, got)

		_, found, err = s.Update(ctx, it.ID+100, "Ghost", 1)
		require.NoError(t, err)
		assert.False(t, found)

		removed, err := s.Delete(ctx, it.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.Delete(ctx, it.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		_, found, err = s.Get(ctx, it.ID)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestStore_ConcurrentInserts(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Insert(ctx, "Mug", int64(i))
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, n)

		seen := map[int64]bool{}
		for _, it := range all {
			assert.False(t, seen[it.ID], "duplicate id %d", it.ID)
			seen[it.ID] = true
		}
	})
}

func TestOpenSQLite_ReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prices.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	_, err = s.Insert(ctx, "Mug", 300)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "sqlite", s.Dialect())
	ok, err := s.Exists(ctx, "Mug", 300)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDialectRebind(t *testing.T) {
	q := `UPDATE prices SET name = ?, price = ? WHERE id = ?`
	assert.Equal(t, q, sqliteDialect.rebind(q))
	assert.Equal(t, `UPDATE prices SET name = $1, price = $2 WHERE id = $3`, postgresDialect.rebind(q))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	conn := &pgconn.PgError{Code: "08006", Message: "connection failure"}
	assert.ErrorIs(t, classify(conn), ErrUnavailable)

	var pgErr *pgconn.PgError
	assert.ErrorAs(t, classify(conn), &pgErr)

	unique := &pgconn.PgError{Code: "23505"}
	assert.NotErrorIs(t, classify(unique), ErrUnavailable)

	plain := errors.New("boom")
	assert.Same(t, plain, classify(plain))
}
