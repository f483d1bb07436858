// Package search answers "which studios can host this session" queries.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"studiorent/internal/metrics"
	"studiorent/internal/model"
	"studiorent/internal/schedule"
)

// DefaultParallelism bounds concurrent studio evaluations.
const DefaultParallelism = 8

// ErrInvalidCandidate is returned for candidates with a non-positive duration.
var ErrInvalidCandidate = errors.New("candidate duration must be positive")

// BlockSource supplies calendar blocks overlapping an interval for given rooms.
type BlockSource interface {
	BlocksOverlapping(ctx context.Context, roomIDs []string, start, end time.Time) ([]model.CalendarBlock, error)
}

// Candidate is a requested session expressed on the studio's wall clock.
// The same date and time resolve to different instants per studio zone.
type Candidate struct {
	Year         int
	Month        time.Month
	Day          int
	StartMinutes int // minutes from local midnight of Year-Month-Day
	Duration     time.Duration
	RoomType     string
}

// Interval resolves the candidate to absolute instants in loc.
func (c Candidate) Interval(loc *time.Location) (start, end time.Time) {
	midnight := schedule.LocalMidnight(c.Year, c.Month, c.Day, loc)
	start = midnight.Add(time.Duration(c.StartMinutes) * time.Minute)
	return start, start.Add(c.Duration)
}

// Finder evaluates candidates against studio calendars and stored blocks.
type Finder struct {
	blocks      BlockSource
	logger      zerolog.Logger
	parallelism int
}

// NewFinder creates a Finder reading blocks from src.
func NewFinder(src BlockSource, logger zerolog.Logger) *Finder {
	return &Finder{
		blocks:      src,
		logger:      logger.With().Str("component", "search").Logger(),
		parallelism: DefaultParallelism,
	}
}

// WithParallelism overrides the number of studios evaluated concurrently.
func (f *Finder) WithParallelism(n int) *Finder {
	if n > 0 {
		f.parallelism = n
	}
	return f
}

// FindAvailableStudios returns the ids of studios with at least one matching
// room that is open and free for the whole candidate. Studios with broken
// calendar data are skipped; only block lookups can fail the query.
func (f *Finder) FindAvailableStudios(ctx context.Context, c Candidate, studios []model.StudioCalendar) ([]string, error) {
	if c.Duration <= 0 {
		return nil, ErrInvalidCandidate
	}
	roomType := ""
	if c.RoomType != "" {
		roomType = model.NormalizeRoomType(c.RoomType)
	}

	available := make([]bool, len(studios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallelism)
	for i := range studios {
		sc := &studios[i]
		g.Go(func() error {
			ok, err := f.studioAvailable(gctx, c, roomType, sc)
			if err != nil {
				return fmt.Errorf("studio %s: %w", sc.Studio.ID, err)
			}
			available[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.IncAvailabilityQuery("error")
		return nil, err
	}

	ids := make([]string, 0)
	for i, ok := range available {
		if ok {
			ids = append(ids, studios[i].Studio.ID)
		}
	}
	sort.Strings(ids)
	metrics.IncAvailabilityQuery("ok")
	return ids, nil
}

func (f *Finder) studioAvailable(ctx context.Context, c Candidate, roomType string, sc *model.StudioCalendar) (bool, error) {
	if !sc.Studio.IsActive {
		return false, nil
	}
	cal, err := sc.Calendar()
	if err != nil {
		f.logger.Warn().Err(err).Str("studio_id", sc.Studio.ID).Msg("Skipping studio with unusable calendar")
		return false, nil
	}

	start, end := c.Interval(cal.Zone())
	if !cal.Contains(start, end) {
		return false, nil
	}

	rooms := candidateRooms(sc.Studio.Rooms, roomType)
	if len(rooms) == 0 {
		return false, nil
	}

	blocks, err := f.blocks.BlocksOverlapping(ctx, rooms, start, end)
	if err != nil {
		return false, err
	}
	return AnyRoomFree(rooms, blocks, start, end), nil
}

func candidateRooms(rooms []model.Room, roomType string) []string {
	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		if roomType != "" && model.NormalizeRoomType(r.Type) != roomType {
			continue
		}
		ids = append(ids, r.ID)
	}
	return ids
}

// AnyRoomFree reports whether at least one room has no blocking block
// overlapping [start, end).
func AnyRoomFree(roomIDs []string, blocks []model.CalendarBlock, start, end time.Time) bool {
	busy := make(map[string]bool, len(roomIDs))
	for i := range blocks {
		b := &blocks[i]
		if b.IsBlocking() && b.OverlapsWith(start, end) {
			busy[b.RoomID] = true
		}
	}
	for _, id := range roomIDs {
		if !busy[id] {
			return true
		}
	}
	return false
}
