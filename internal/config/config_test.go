package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiorent/internal/schedule"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STUDIORENT_API_KEY", "secret")
	path := writeFile(t, dir, "config.yaml", `
server:
  port: 9090
  api_key: ${STUDIORENT_API_KEY}
database:
  path: `+filepath.Join(dir, "db", "test.db")+`
redis:
  cache_ttl_seconds: 15
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, 42*24*time.Hour, cfg.MaxCalendarRange())
	assert.Equal(t, 15*time.Second, cfg.CacheTTL())
	assert.Equal(t, 5*time.Second, cfg.LockTTL())
	assert.Equal(t, 30*time.Second, cfg.StudiosReloadInterval())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, float64(10), cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "configs/studios.yaml", cfg.Studios.ConfigPath)
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

const validStudios = `
defaults:
  timezone: Europe/Istanbul
  day_cutoff_hour: 5
  opening_hours:
    - {open: true, open_time: "09:00", close_time: "21:00"}
    - {open: true, open_time: "09:00", close_time: "21:00"}
    - {open: true, open_time: "09:00", close_time: "21:00"}
    - {open: true, open_time: "09:00", close_time: "21:00"}
    - {open: true, open_time: "09:00", close_time: "21:00"}
    - {open: true, open_time: "11:00", close_time: "20:00"}
    - {open: false}
studios:
  - id: moda
    owner_id: owner-1
    name: Moda Ses
    province: Istanbul
    district: Kadikoy
    is_active: true
    rooms:
      - {id: moda-a, name: A, type: "Kayıt"}
  - id: gece
    owner_id: owner-2
    name: Gece Prova
    is_active: true
    timezone: Europe/Berlin
    day_cutoff_hour: 0
    opening_hours:
      - {open: true, open_time: "22:00", close_time: "04:00"}
      - {open: true, open_time: "22:00", close_time: "04:00"}
      - {open: true, open_time: "22:00", close_time: "04:00"}
      - {open: true, open_time: "22:00", close_time: "04:00"}
      - {open: true, open_time: "22:00", close_time: "04:00"}
      - {open: true, open_time: "22:00", close_time: "04:00"}
      - {open: true, open_time: "22:00", close_time: "04:00"}
    rooms:
      - {id: gece-1, name: Bir, type: prova}
`

func TestLoadStudiosConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "studios.yaml", validStudios)

	cfg, err := LoadStudiosConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Studios, 2)

	moda := cfg.Studios[0]
	assert.Equal(t, "Europe/Istanbul", moda.Timezone)
	require.NotNil(t, moda.DayCutoffHour)
	assert.Equal(t, 5, *moda.DayCutoffHour)
	assert.Equal(t, "11:00", moda.Week()[5].OpenTime)
	assert.False(t, moda.Week()[6].Open)

	studio := moda.Studio()
	require.Len(t, studio.Rooms, 1)
	assert.Equal(t, "kayit-kabini", studio.Rooms[0].Type)
	assert.Equal(t, "moda", studio.Rooms[0].StudioID)

	settings := moda.Settings(cfg.Defaults)
	assert.Equal(t, 5, settings.DayCutoffHour)
	assert.Equal(t, 60, settings.SlotStepMinutes)
	assert.NoError(t, settings.Validate())

	gece := cfg.Studios[1]
	assert.Equal(t, "Europe/Berlin", gece.Timezone)
	assert.Equal(t, 0, *gece.DayCutoffHour)
	rng, ok := schedule.OpenRange(gece.Week(), 0)
	require.True(t, ok)
	assert.Equal(t, schedule.Range{Start: 1320, End: 1680}, rng)
}

func TestLoadStudiosConfig_NoOpeningHoursFallsBackToDefaultWeek(t *testing.T) {
	path := writeFile(t, t.TempDir(), "studios.yaml", `
studios:
  - {id: s, owner_id: o, name: S, is_active: true}
`)
	cfg, err := LoadStudiosConfig(path)
	require.NoError(t, err)
	assert.Equal(t, schedule.DefaultWeek(), cfg.Studios[0].Week())
	assert.Equal(t, schedule.DefaultTimezone, cfg.Studios[0].Timezone)
	assert.Equal(t, schedule.DefaultCutoffHour, *cfg.Studios[0].DayCutoffHour)
}

func TestStudiosConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "empty", content: `studios: []`, wantErr: "no studios defined"},
		{
			name:    "duplicate id",
			content: "studios:\n  - {id: a, owner_id: o, name: A}\n  - {id: a, owner_id: o, name: B}\n",
			wantErr: "duplicate id",
		},
		{name: "missing owner", content: "studios:\n  - {id: a, name: A}\n", wantErr: "owner_id is required"},
		{
			name:    "bad timezone",
			content: "studios:\n  - {id: a, owner_id: o, name: A, timezone: Mars/Base}\n",
			wantErr: "unknown timezone",
		},
		{
			name:    "cutoff too late",
			content: "studios:\n  - {id: a, owner_id: o, name: A, day_cutoff_hour: 9}\n",
			wantErr: "day_cutoff_hour",
		},
		{
			name:    "six day week",
			content: "studios:\n  - id: a\n    owner_id: o\n    name: A\n    opening_hours: [{open: false}, {open: false}, {open: false}, {open: false}, {open: false}, {open: false}]\n",
			wantErr: "need 7 entries",
		},
		{
			name:    "malformed clock",
			content: "defaults:\n  opening_hours: [{open: true, open_time: '9am', close_time: '21:00'}, {}, {}, {}, {}, {}, {}]\nstudios:\n  - {id: a, owner_id: o, name: A}\n",
			wantErr: "open_time",
		},
		{
			name:    "duplicate room",
			content: "studios:\n  - {id: a, owner_id: o, name: A, rooms: [{id: r}]}\n  - {id: b, owner_id: o, name: B, rooms: [{id: r}]}\n",
			wantErr: "duplicate room id",
		},
		{
			name:    "slot step",
			content: "defaults:\n  slot_step_minutes: 45\nstudios:\n  - {id: a, owner_id: o, name: A}\n",
			wantErr: "slot_step_minutes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "studios.yaml", tt.content)
			_, err := LoadStudiosConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatchStudios(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "studios.yaml", validStudios)

	var calls atomic.Int32
	var latest atomic.Pointer[StudiosConfig]
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := WatchStudios(ctx, path, 10*time.Millisecond, zerolog.New(io.Discard), func(cfg *StudiosConfig) {
		calls.Add(1)
		latest.Store(cfg)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// Invalid content is ignored.
	require.NoError(t, os.WriteFile(path, []byte("studios: []"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, os.WriteFile(path, []byte("studios:\n  - {id: only, owner_id: o, name: Only}\n"), 0o644))
	later := future.Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 10*time.Millisecond)
	require.Len(t, latest.Load().Studios, 1)
	assert.Equal(t, "only", latest.Load().Studios[0].ID)
}

func TestWatchStudios_InitialLoadFails(t *testing.T) {
	err := WatchStudios(context.Background(), filepath.Join(t.TempDir(), "none.yaml"), time.Second, zerolog.New(io.Discard), nil)
	assert.Error(t, err)
}
