package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations(t *testing.T) {
	pool := TestDB(t)
	ctx := context.Background()

	err := RunMigrations(ctx, pool)
	require.NoError(t, err)

	t.Run("is idempotent", func(t *testing.T) {
		require.NoError(t, RunMigrations(ctx, pool))
	})

	t.Run("creates all tables", func(t *testing.T) {
		for _, table := range []string{"invoices", "email_accounts", "providers"} {
			var exists bool
			err := pool.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM information_schema.tables
					WHERE table_name = $1
				)
			`, table).Scan(&exists)
			require.NoError(t, err)
			require.True(t, exists, "table %s should exist", table)
		}
	})

	t.Run("enforces message id uniqueness per user", func(t *testing.T) {
		CleanupTables(t, pool)

		userID := uuid.New()
		insert := `
			INSERT INTO invoices (id, user_id, provider, gmail_message_id, status)
			VALUES ($1, $2, 'Spotify', $3, 'needs_pdf')
		`
		_, err := pool.Exec(ctx, insert, uuid.New(), userID, "msg-1")
		require.NoError(t, err)

		_, err = pool.Exec(ctx, insert, uuid.New(), userID, "msg-1")
		require.Error(t, err, "duplicate (user, message) must be rejected")

		// Same message for a different user is fine.
		_, err = pool.Exec(ctx, insert, uuid.New(), uuid.New(), "msg-1")
		require.NoError(t, err)

		// NULL message ids never collide.
		_, err = pool.Exec(ctx, insert, uuid.New(), userID, nil)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, insert, uuid.New(), userID, nil)
		require.NoError(t, err)
	})
}

func TestSeedProviders(t *testing.T) {
	pool := TestDB(t)
	ctx := context.Background()

	require.NoError(t, RunMigrations(ctx, pool))
	CleanupTables(t, pool)

	err := SeedProviders(ctx, pool)
	require.NoError(t, err)

	var count int
	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM providers WHERE is_default`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, len(defaultProviders), count)

	t.Run("reseeding does not duplicate", func(t *testing.T) {
		require.NoError(t, SeedProviders(ctx, pool))

		var again int
		err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM providers WHERE is_default`).Scan(&again)
		require.NoError(t, err)
		require.Equal(t, count, again)
	})

	t.Run("seeded rows carry derived search queries", func(t *testing.T) {
		var query string
		err := pool.QueryRow(ctx,
			`SELECT search_query FROM providers WHERE name = 'Spotify' AND is_default`,
		).Scan(&query)
		require.NoError(t, err)
		require.Equal(t, "from:spotify.com subject:(receipt OR invoice OR payment OR facture)", query)
	})
}
