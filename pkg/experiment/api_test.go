package experiment_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/experiment"
)

func TestAPI(t *testing.T) {
	store := experiment.InMemoryStore()
	now := time.Now()
	gbn := testRecord(arq.GoBackN, 10, 0.3, 0.5, now)
	sr := testRecord(arq.SelectiveRepeat, 10, 0.3, 0.8, now.Add(time.Second))
	sr.Err = "transfer timeout"
	require.NoError(t, store.Put(gbn))
	require.NoError(t, store.Put(sr))

	metricsHit := false
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		metricsHit = true
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(experiment.NewAPI(store, metrics))
	defer srv.Close()

	list := func(query string) (int, []*experiment.Record) {
		resp, err := http.Get(srv.URL + "/records" + query)
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()

		var out []*experiment.Record
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		}
		return resp.StatusCode, out
	}

	code, all := list("")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, all, 2)
	assert.Equal(t, gbn.ID, all[0].ID)

	code, got := list("?protocol=selective-repeat")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, got, 1)
	assert.Equal(t, sr.ID, got[0].ID)

	code, got = list("?failed=true")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, got, 1)
	assert.True(t, got[0].Failed())

	code, _ = list("?protocol=stop-and-wait")
	assert.Equal(t, http.StatusBadRequest, code)

	for path, want := range map[string]int{
		"/records/" + gbn.ID.String():     http.StatusOK,
		"/records/" + uuid.New().String(): http.StatusNotFound,
		"/records/not-a-uuid":             http.StatusBadRequest,
		"/metrics":                        http.StatusOK,
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		assert.Equal(t, want, resp.StatusCode, path)
	}
	assert.True(t, metricsHit)
}
