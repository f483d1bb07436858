package blocks

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"studiorent/internal/events"
	"studiorent/internal/model"
	"studiorent/internal/schedule"
)

// memRepo is an in-memory Repository. InTx holds the mutex for the whole
// callback, which gives the same serialisation as an immediate sqlite tx.
type memRepo struct {
	mu      sync.Mutex
	rooms   map[string]model.Room
	studios map[string]model.StudioCalendar
	blocks  map[string]model.CalendarBlock
}

func newMemRepo() *memRepo {
	return &memRepo{
		rooms:   make(map[string]model.Room),
		studios: make(map[string]model.StudioCalendar),
		blocks:  make(map[string]model.CalendarBlock),
	}
}

func (r *memRepo) addStudio(id, owner string, roomIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	week := schedule.DefaultWeek()
	week[6] = schedule.DayHours{Open: false}
	st := model.Studio{ID: id, OwnerID: owner, OpeningHours: week, IsActive: true}
	for _, rid := range roomIDs {
		room := model.Room{ID: rid, StudioID: id, Type: "prova-odasi"}
		r.rooms[rid] = room
		st.Rooms = append(st.Rooms, room)
	}
	r.studios[id] = model.StudioCalendar{Studio: st}
}

func (r *memRepo) GetBlock(_ context.Context, id string) (*model.CalendarBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blocks[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *memRepo) GetRoom(_ context.Context, roomID string) (*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

func (r *memRepo) GetStudioCalendar(_ context.Context, studioID string) (*model.StudioCalendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.studios[studioID]
	if !ok {
		return nil, nil
	}
	return &sc, nil
}

func (r *memRepo) InTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(memTx{r})
}

type memTx struct{ r *memRepo }

func (t memTx) OverlappingBlocks(_ context.Context, roomID string, start, end time.Time, excludeID string) ([]model.CalendarBlock, error) {
	var out []model.CalendarBlock
	for _, b := range t.r.blocks {
		if b.RoomID == roomID && b.ID != excludeID && b.OverlapsWith(start, end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t memTx) InsertBlock(_ context.Context, b *model.CalendarBlock) error {
	t.r.blocks[b.ID] = *b
	return nil
}

func (t memTx) UpdateBlock(_ context.Context, b *model.CalendarBlock) error {
	t.r.blocks[b.ID] = *b
	return nil
}

func (t memTx) DeleteBlock(_ context.Context, id string) error {
	delete(t.r.blocks, id)
	return nil
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, roomID string) (func(), error) {
	args := m.Called(ctx, roomID)
	if fn, ok := args.Get(0).(func()); ok {
		return fn, args.Error(1)
	}
	return nil, args.Error(1)
}

func ist(t *testing.T, day, hour, minute int) time.Time {
	t.Helper()
	loc, err := schedule.LoadLocation("Europe/Istanbul")
	require.NoError(t, err)
	return time.Date(2026, 1, day, hour, minute, 0, 0, loc)
}

func newTestService(repo Repository, locker Locker, bus *events.Bus) *Service {
	return NewService(repo, locker, bus, zerolog.New(io.Discard))
}

func TestCreateOrUpdate_Validation(t *testing.T) {
	repo := newMemRepo()
	repo.addStudio("s1", "owner-1", "r1")
	svc := newTestService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateOrUpdate(ctx, BlockInput{
		OwnerID: "owner-1", RoomID: "r1", Type: "manual_block",
		StartAt: ist(t, 7, 10, 0), EndAt: ist(t, 7, 12, 0),
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   BlockInput
		want error
	}{
		{
			name: "end before start",
			in:   BlockInput{OwnerID: "owner-1", RoomID: "r1", Type: "manual", StartAt: ist(t, 7, 14, 0), EndAt: ist(t, 7, 13, 0)},
			want: ErrInvalidRange,
		},
		{
			name: "empty range",
			in:   BlockInput{OwnerID: "owner-1", RoomID: "r1", Type: "manual", StartAt: ist(t, 7, 14, 0), EndAt: ist(t, 7, 14, 0)},
			want: ErrInvalidRange,
		},
		{
			name: "unrecognized type label",
			in:   BlockInput{OwnerID: "owner-1", RoomID: "r1", Type: "rezervation", StartAt: ist(t, 7, 14, 0), EndAt: ist(t, 7, 15, 0)},
			want: ErrInvalidType,
		},
		{
			name: "missing type",
			in:   BlockInput{OwnerID: "owner-1", RoomID: "r1", StartAt: ist(t, 7, 14, 0), EndAt: ist(t, 7, 15, 0)},
			want: ErrInvalidType,
		},
		{
			name: "reservation on closed sunday",
			in:   BlockInput{OwnerID: "owner-1", RoomID: "r1", Type: "Rezervasyon", StartAt: ist(t, 11, 10, 0), EndAt: ist(t, 11, 11, 0)},
			want: ErrOutsideHours,
		},
		{
			name: "reservation past closing",
			in:   BlockInput{OwnerID: "owner-1", RoomID: "r1", Type: "reservation", StartAt: ist(t, 7, 20, 0), EndAt: ist(t, 7, 22, 0)},
			want: ErrOutsideHours,
		},
		{
			name: "overlaps existing block",
			in:   BlockInput{OwnerID: "owner-1", RoomID: "r1", Type: "reservation", StartAt: ist(t, 7, 11, 0), EndAt: ist(t, 7, 13, 0)},
			want: ErrOverlapConflict,
		},
		{
			name: "other owner",
			in:   BlockInput{OwnerID: "owner-2", RoomID: "r1", Type: "manual", StartAt: ist(t, 7, 14, 0), EndAt: ist(t, 7, 15, 0)},
			want: ErrForbidden,
		},
		{
			name: "unknown room",
			in:   BlockInput{OwnerID: "owner-1", RoomID: "nope", Type: "manual", StartAt: ist(t, 7, 14, 0), EndAt: ist(t, 7, 15, 0)},
			want: ErrRoomNotFound,
		},
		{
			name: "unknown block id",
			in:   BlockInput{ID: "missing", OwnerID: "owner-1", RoomID: "r1", Type: "manual", StartAt: ist(t, 7, 14, 0), EndAt: ist(t, 7, 15, 0)},
			want: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrUpdate(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Len(t, repo.blocks, 1)
}

func TestCreateOrUpdate_ManualBlockIgnoresHours(t *testing.T) {
	repo := newMemRepo()
	repo.addStudio("s1", "owner-1", "r1")
	svc := newTestService(repo, nil, nil)

	b, err := svc.CreateOrUpdate(context.Background(), BlockInput{
		OwnerID: "owner-1", RoomID: "r1", Type: "Manuel Blok", Title: "maintenance",
		StartAt: ist(t, 11, 10, 0), EndAt: ist(t, 11, 18, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, model.BlockManual, b.Type)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, time.UTC, b.StartAt.Location())
}

func TestCreateOrUpdate_TouchingAndPendingCountForWrites(t *testing.T) {
	repo := newMemRepo()
	repo.addStudio("s1", "owner-1", "r1", "r2")
	svc := newTestService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateOrUpdate(ctx, BlockInput{
		OwnerID: "owner-1", RoomID: "r1", Type: "reservation", Status: "pending",
		StartAt: ist(t, 7, 10, 0), EndAt: ist(t, 7, 11, 0),
	})
	require.NoError(t, err)

	// Touching endpoints do not conflict.
	_, err = svc.CreateOrUpdate(ctx, BlockInput{
		OwnerID: "owner-1", RoomID: "r1", Type: "reservation", Status: "Onaylı",
		StartAt: ist(t, 7, 11, 0), EndAt: ist(t, 7, 12, 0),
	})
	require.NoError(t, err)

	// A pending reservation still occupies the row for writers.
	_, err = svc.CreateOrUpdate(ctx, BlockInput{
		OwnerID: "owner-1", RoomID: "r1", Type: "manual",
		StartAt: ist(t, 7, 10, 30), EndAt: ist(t, 7, 10, 45),
	})
	assert.ErrorIs(t, err, ErrOverlapConflict)

	// Other rooms are independent.
	_, err = svc.CreateOrUpdate(ctx, BlockInput{
		OwnerID: "owner-1", RoomID: "r2", Type: "manual",
		StartAt: ist(t, 7, 10, 30), EndAt: ist(t, 7, 10, 45),
	})
	assert.NoError(t, err)
}

func TestCreateOrUpdate_Update(t *testing.T) {
	repo := newMemRepo()
	repo.addStudio("s1", "owner-1", "r1")
	repo.addStudio("s2", "owner-2", "x1")
	svc := newTestService(repo, nil, nil)
	ctx := context.Background()

	created, err := svc.CreateOrUpdate(ctx, BlockInput{
		OwnerID: "owner-1", RoomID: "r1", Type: "reservation", Status: "pending",
		StartAt: ist(t, 7, 10, 0), EndAt: ist(t, 7, 11, 0),
	})
	require.NoError(t, err)

	// Extending its own interval does not conflict with itself.
	updated, err := svc.CreateOrUpdate(ctx, BlockInput{
		ID: created.ID, OwnerID: "owner-1", RoomID: "r1", Type: "reservation", Status: "approved",
		StartAt: ist(t, 7, 10, 0), EndAt: ist(t, 7, 12, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, model.ApprovalApproved, updated.Approval)
	assert.True(t, ist(t, 7, 12, 0).Equal(repo.blocks[created.ID].EndAt))

	// Moving it into a foreign studio is rejected.
	_, err = svc.CreateOrUpdate(ctx, BlockInput{
		ID: created.ID, OwnerID: "owner-1", RoomID: "x1", Type: "manual",
		StartAt: ist(t, 7, 10, 0), EndAt: ist(t, 7, 12, 0),
	})
	assert.ErrorIs(t, err, ErrForbidden)

	// A foreign owner cannot take over the block.
	_, err = svc.CreateOrUpdate(ctx, BlockInput{
		ID: created.ID, OwnerID: "owner-2", RoomID: "x1", Type: "manual",
		StartAt: ist(t, 7, 10, 0), EndAt: ist(t, 7, 12, 0),
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateOrUpdate_ConcurrentWritersOneWins(t *testing.T) {
	repo := newMemRepo()
	repo.addStudio("s1", "owner-1", "r1")
	svc := newTestService(repo, nil, nil)

	const writers = 10
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateOrUpdate(context.Background(), BlockInput{
				OwnerID: "owner-1", RoomID: "r1", Type: "manual",
				StartAt: ist(t, 7, 10, 0), EndAt: ist(t, 7, 11, 0),
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrOverlapConflict)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, repo.blocks, 1)
}

func TestDelete(t *testing.T) {
	repo := newMemRepo()
	repo.addStudio("s1", "owner-1", "r1")
	bus := events.NewBus()
	var seen []events.Event
	bus.Subscribe(func(e events.Event) error {
		seen = append(seen, e)
		return nil
	}, events.BlockCreated, events.BlockDeleted)
	svc := newTestService(repo, nil, bus)
	ctx := context.Background()

	b, err := svc.CreateOrUpdate(ctx, BlockInput{
		OwnerID: "owner-1", RoomID: "r1", Type: "manual",
		StartAt: ist(t, 7, 10, 0), EndAt: ist(t, 7, 11, 0),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, "owner-2", b.ID), ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, "", b.ID), ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, "owner-1", "missing"), ErrNotFound)
	assert.Len(t, repo.blocks, 1)

	require.NoError(t, svc.Delete(ctx, "owner-1", b.ID))
	assert.Empty(t, repo.blocks)

	require.Len(t, seen, 2)
	assert.Equal(t, events.BlockCreated, seen[0].Type)
	assert.Equal(t, events.BlockDeleted, seen[1].Type)
	assert.Equal(t, "s1", seen[1].StudioID)
	assert.Equal(t, b.ID, seen[1].BlockID)
}

func TestCreateOrUpdate_Locker(t *testing.T) {
	repo := newMemRepo()
	repo.addStudio("s1", "owner-1", "r1")
	in := BlockInput{
		OwnerID: "owner-1", RoomID: "r1", Type: "manual",
		StartAt: ist(t, 7, 10, 0), EndAt: ist(t, 7, 11, 0),
	}

	t.Run("lock held around write", func(t *testing.T) {
		locker := new(mockLocker)
		released := false
		locker.On("Lock", mock.Anything, "r1").Return(func() { released = true }, nil).Once()

		_, err := newTestService(repo, locker, nil).CreateOrUpdate(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, released)
		locker.AssertExpectations(t)
	})

	t.Run("busy room", func(t *testing.T) {
		locker := new(mockLocker)
		locker.On("Lock", mock.Anything, "r1").Return(nil, ErrRoomBusy).Once()

		in := in
		in.StartAt, in.EndAt = ist(t, 8, 10, 0), ist(t, 8, 11, 0)
		_, err := newTestService(repo, locker, nil).CreateOrUpdate(context.Background(), in)
		assert.ErrorIs(t, err, ErrRoomBusy)
		locker.AssertExpectations(t)
	})

	t.Run("validation fails before locking", func(t *testing.T) {
		locker := new(mockLocker)
		bad := in
		bad.EndAt = bad.StartAt
		_, err := newTestService(repo, locker, nil).CreateOrUpdate(context.Background(), bad)
		assert.ErrorIs(t, err, ErrInvalidRange)
		locker.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything)
	})
}

func TestCreateOrUpdate_UnknownTimezone(t *testing.T) {
	repo := newMemRepo()
	repo.addStudio("s1", "owner-1", "r1")
	sc := repo.studios["s1"]
	sc.Settings = &model.CalendarSettings{StudioID: "s1", Timezone: "Nowhere/Land", SlotStepMinutes: 60}
	repo.studios["s1"] = sc

	_, err := newTestService(repo, nil, nil).CreateOrUpdate(context.Background(), BlockInput{
		OwnerID: "owner-1", RoomID: "r1", Type: "reservation",
		StartAt: ist(t, 7, 10, 0), EndAt: ist(t, 7, 11, 0),
	})
	assert.ErrorIs(t, err, schedule.ErrUnknownTimezone)
	assert.False(t, errors.Is(err, ErrOutsideHours))
}
