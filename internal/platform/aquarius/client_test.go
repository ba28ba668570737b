package aquarius

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMarketKeys_FollowsNext(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/market-keys/", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"count":2,"next":null,"results":[{"account_id":"GUP2","downvote_account_id":"GDOWN2"}]}`)
			return
		}
		fmt.Fprintf(w, `{"count":2,"next":"%s/api/market-keys/?page=2","results":[{"account_id":"GUP1","downvote_account_id":"GDOWN1","asset1":"native","asset2":"AQUA:GISSUER"}]}`, srv.URL)
	}))
	defer srv.Close()

	keys, err := NewClient(srv.URL+"/", 1).ListMarketKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, domain.MarketKey{Up: "GUP1", Down: "GDOWN1", Asset1: "native", Asset2: "AQUA:GISSUER"}, keys[0])
	assert.Equal(t, "GDOWN2", keys[1].Down)
}

func TestFindByAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.ElementsMatch(t, []string{"GUP1", "GDOWN9"}, r.URL.Query()["account_id"])
		fmt.Fprint(w, `{"results":[
			{"account_id":"GUP1","downvote_account_id":"GDOWN1"},
			{"account_id":"GUP9","downvote_account_id":"GDOWN9"},
			{"account_id":"GOTHER","downvote_account_id":"GOTHERDOWN"}
		]}`)
	}))
	defer srv.Close()

	keys, err := NewClient(srv.URL, 0).FindByAddresses(context.Background(), []string{"GUP1", "GDOWN9"})
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "GUP1", keys[0].Up)
	assert.Equal(t, "GUP9", keys[1].Up)
}

func TestFindByAddresses_Empty(t *testing.T) {
	keys, err := NewClient("http://unused", 0).FindByAddresses(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, keys)
}

func TestListMarketKeys_StatusErrors(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusForbidden, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, 0).ListMarketKeys(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
