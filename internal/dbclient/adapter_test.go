package dbclient_test

import (
	"testing"

	"dbai/internal/dbclient"
	"dbai/internal/domain"
	"dbai/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := dbclient.DefaultRegistry(testutil.NewTestLogger(t))

	assert.Equal(t, []domain.DatabaseDriver{
		domain.DatabaseDriverDuckDB,
		domain.DatabaseDriverMongoDB,
		domain.DatabaseDriverMySQL,
		domain.DatabaseDriverPostgres,
		domain.DatabaseDriverRedis,
		domain.DatabaseDriverSQLite,
	}, r.Drivers())

	for _, d := range r.Drivers() {
		a, err := r.Get(d)
		require.NoError(t, err)
		assert.Equal(t, d, a.Driver())
	}
}

func TestRegistry_Unknown(t *testing.T) {
	r := dbclient.NewRegistry()
	_, err := r.Get("oracle")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	var unknown *dbclient.UnknownAdapterError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, domain.DatabaseDriver("oracle"), unknown.Driver)
}

func TestDocumentGet(t *testing.T) {
	doc := dbclient.Document{{Key: "a", Value: 1}}
	v, ok := doc.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = doc.Get("b")
	assert.False(t, ok)
}
