package clientdata_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/dispatch/internal/clientdata"
	dbtest "github.com/fleetops/dispatch/internal/testing"
)

func newRepo(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, cleanup := dbtest.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	return clientdata.NewRepository(db.Conn())
}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo := newRepo(t)

	payload := map[string]float64{"impact_factor": 1.2}
	require.NoError(t, repo.Store("weather:mumbai", payload, time.Hour))

	raw, err := repo.GetIfFresh("weather:mumbai")
	require.NoError(t, err)
	require.NotNil(t, raw)

	var got map[string]float64
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, payload, got)

	// Unknown keys read as nil without error
	raw, err = repo.GetIfFresh("weather:nowhere")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestStore_UpsertsOnKey(t *testing.T) {
	repo := newRepo(t)
	require.NoError(t, repo.Store("k", map[string]int{"v": 1}, time.Hour))
	require.NoError(t, repo.Store("k", map[string]int{"v": 2}, time.Hour))

	raw, err := repo.GetIfFresh("k")
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 2, got["v"])
}

func TestGet_ReturnsStaleData(t *testing.T) {
	repo := newRepo(t)
	require.NoError(t, repo.Store("stale", "payload", -time.Minute))

	fresh, err := repo.GetIfFresh("stale")
	require.NoError(t, err)
	assert.Nil(t, fresh, "expired entries are not fresh")

	// The stale fallback still sees it
	raw, err := repo.Get("stale")
	require.NoError(t, err)
	require.NotNil(t, raw)
	var got string
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "payload", got)
}

func TestDelete(t *testing.T) {
	repo := newRepo(t)
	require.NoError(t, repo.Store("gone", 42, time.Hour))
	require.NoError(t, repo.Delete("gone"))

	raw, err := repo.Get("gone")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestPurgeExpired(t *testing.T) {
	repo := newRepo(t)
	require.NoError(t, repo.Store("expired-1", 1, -time.Minute))
	require.NoError(t, repo.Store("expired-2", 2, -time.Hour))
	require.NoError(t, repo.Store("alive", 3, time.Hour))

	n, err := repo.PurgeExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	raw, err := repo.Get("alive")
	require.NoError(t, err)
	assert.NotNil(t, raw)
}
