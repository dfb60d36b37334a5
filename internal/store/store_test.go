package store

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusExpired.Terminal())
}

func TestMigrationVersionFromFilename(t *testing.T) {
	v, err := migrationVersion("000_init.sql")
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	v, err = migrationVersion("017_add_tenant.sql")
	require.NoError(t, err)
	assert.Equal(t, 17, v)

	_, err = migrationVersion("init.sql")
	assert.Error(t, err)
	_, err = migrationVersion("vNext_init.sql")
	assert.Error(t, err)
}

// The runner records each file under its filename-prefix version; every
// embedded file must carry a parseable, strictly increasing prefix.
func TestMigrationsEmbedSane(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var names []string
	last := -1
	for _, e := range entries {
		assert.True(t, strings.HasSuffix(e.Name(), ".sql"), "non-sql file %q in migrations", e.Name())
		names = append(names, e.Name())
		v, verErr := migrationVersion(e.Name())
		require.NoError(t, verErr)
		assert.Greater(t, v, last, "migration %q out of order", e.Name())
		last = v
	}
	assert.True(t, sort.StringsAreSorted(names))

	first, err := migrationFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	assert.Contains(t, string(first), "interview_sessions")
	assert.Contains(t, string(first), "transcript_messages")
	assert.Contains(t, string(first), "access_links")
}
