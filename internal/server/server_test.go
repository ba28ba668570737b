package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/alanyoungcy/govledger/internal/server/handler"
	"github.com/stretchr/testify/assert"
)

type noSnapshot struct{}

func (noSnapshot) Snapshot() *domain.BalanceSnapshot { return nil }

func TestServer_Routing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(Config{Port: 0, APIKey: "k"}, Handlers{
		Health: handler.NewHealthHandler(logger, nil),
		Status: handler.NewStatusHandler("watch", "GACC", noSnapshot{}, time.Now()),
	}, nil, nil, logger)

	tests := []struct {
		name string
		path string
		key  string
		want int
	}{
		{"health is open", "/api/health", "", http.StatusOK},
		{"status needs key", "/api/status", "", http.StatusUnauthorized},
		{"status with key", "/api/status", "k", http.StatusOK},
		{"unknown route", "/api/orders", "k", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(Config{}, Handlers{}, nil, nil, logger)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
