package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamerstock/internal/game"
)

func TestClientBuySendsIntent(t *testing.T) {
	var gotPath, gotRequestID string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRequestID = r.Header.Get("X-Request-Id")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"state":{"authenticated":true,"player":{"cash":1250}}}`))
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL+"/").Buy(context.Background(), "pokimane", 5)
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.Equal(t, int64(1250), st.Player.Cash)
	assert.Equal(t, "/v1/trade/buy", gotPath)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "pokimane", gotBody["commodity_id"])
	assert.Equal(t, float64(5), gotBody["quantity"])
}

func TestClientRejectionCarriesState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"not enough cash","state":{"authenticated":true,"player":{"cash":40}}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Sell(context.Background(), "xqc", 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Rejected())
	assert.Equal(t, "not enough cash", apiErr.Message)
	require.NotNil(t, apiErr.State)
	assert.Equal(t, int64(40), apiErr.State.Player.Cash)
}

func TestClientPlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Login(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.False(t, apiErr.Rejected())
	assert.Equal(t, "bad gateway", apiErr.Message)
	assert.Nil(t, apiErr.State)
}

func TestClientLeaderboardLimit(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rows": []game.LeaderboardRow{{Rank: 1, Username: "tester", Score: 2000}},
		})
	}))
	defer srv.Close()

	rows, err := NewClient(srv.URL).Leaderboard(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "limit=3", gotQuery)
	require.Len(t, rows, 1)
	assert.Equal(t, "tester", rows[0].Username)
}
