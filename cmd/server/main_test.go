package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiorent/internal/api"
	"studiorent/internal/config"
	"studiorent/internal/db"
	"studiorent/internal/events"
)

func TestHealthHandler(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "health.db"), zerolog.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := healthHandler(context.Background(), database, rdb)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"liveness", "/healthz", http.StatusOK, "ok"},
		{"readiness", "/readyz", http.StatusOK, "ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}

	mr.Close()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis not ready")
}

func TestSyncStudios_InvalidatesCalendarCache(t *testing.T) {
	logger := zerolog.New(io.Discard)
	database, err := db.Open(filepath.Join(t.TempDir(), "sync.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bus := events.NewBus()
	api.NewCalendarCache(rdb, time.Minute, logger).Subscribe(bus)

	cutoff := 4
	studio := func(id string) config.StudioConfig {
		return config.StudioConfig{
			ID: id, OwnerID: "owner-" + id, Name: id, Province: "İstanbul",
			IsActive: true, Timezone: "Europe/Istanbul", DayCutoffHour: &cutoff,
			Rooms: []config.RoomConfig{{ID: id + "-1", Name: "Bir", Type: "prova"}},
		}
	}
	sc := &config.StudiosConfig{
		Defaults: config.StudioDefaults{Timezone: "Europe/Istanbul", DayCutoffHour: &cutoff, SlotStepMinutes: 60},
		Studios:  []config.StudioConfig{studio("moda"), studio("kadikoy")},
	}

	ctx := context.Background()
	require.NoError(t, syncStudios(ctx, database, bus, sc, logger))
	for _, id := range []string{"moda", "kadikoy"} {
		version, err := mr.Get("calendar:version:" + id)
		require.NoError(t, err, id)
		assert.Equal(t, "1", version, id)
	}

	// A studio dropped from the file is deactivated and still invalidated.
	sc.Studios = sc.Studios[:1]
	require.NoError(t, syncStudios(ctx, database, bus, sc, logger))
	version, err := mr.Get("calendar:version:kadikoy")
	require.NoError(t, err)
	assert.Equal(t, "2", version)
}
