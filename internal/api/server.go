package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"studiorent/internal/blocks"
	"studiorent/internal/db"
	"studiorent/internal/events"
	"studiorent/internal/model"
	"studiorent/internal/schedule"
	"studiorent/internal/search"
)

// Store is the persistence collaborator used by the handlers.
type Store interface {
	ListStudios(ctx context.Context, filter db.StudioFilter) ([]model.StudioCalendar, error)
	GetStudioCalendar(ctx context.Context, studioID string) (*model.StudioCalendar, error)
	BlocksOverlapping(ctx context.Context, roomIDs []string, start, end time.Time) ([]model.CalendarBlock, error)
	ListHappyHourSlots(ctx context.Context, studioID string) ([]model.HappyHourSlot, error)
	SaveCalendarSettings(ctx context.Context, s *model.CalendarSettings, happyHours []model.HappyHourSlot) error
}

// BlockService mutates calendar blocks.
type BlockService interface {
	CreateOrUpdate(ctx context.Context, in blocks.BlockInput) (*model.CalendarBlock, error)
	Delete(ctx context.Context, ownerID, blockID string) error
}

// Options tunes the HTTP surface.
type Options struct {
	Port              int
	APIKey            string
	MaxRange          time.Duration
	RequestsPerSecond float64
	Burst             int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// HTTPServer serves the availability, calendar and block endpoints.
type HTTPServer struct {
	store   Store
	blocks  BlockService
	finder  *search.Finder
	cache   *CalendarCache
	bus     *events.Bus
	opts    Options
	limiter *clientLimiter
	logger  zerolog.Logger
	server  *http.Server
	now     func() time.Time
}

// NewHTTPServer wires handlers and middleware. cache and bus may be nil.
func NewHTTPServer(store Store, blockSvc BlockService, finder *search.Finder, cache *CalendarCache, bus *events.Bus, opts Options, logger zerolog.Logger) *HTTPServer {
	if opts.MaxRange <= 0 {
		opts.MaxRange = 42 * 24 * time.Hour
	}
	s := &HTTPServer{
		store:  store,
		blocks: blockSvc,
		finder: finder,
		cache:  cache,
		bus:    bus,
		opts:   opts,
		logger: logger.With().Str("component", "api").Logger(),
		now:    time.Now,
	}
	if opts.RequestsPerSecond > 0 {
		s.limiter = newClientLimiter(opts.RequestsPerSecond, opts.Burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/availability/search", s.handleAvailabilitySearch)
	mux.HandleFunc("GET /api/studios/{id}/calendar", s.handleCalendar)
	mux.HandleFunc("GET /api/studios/{id}/calendar.xlsx", s.handleCalendarExport)
	mux.HandleFunc("GET /api/studios/{id}/calendar-settings", s.handleGetCalendarSettings)
	mux.HandleFunc("PUT /api/studios/{id}/calendar-settings", s.handlePutCalendarSettings)
	mux.HandleFunc("POST /api/blocks", s.handleCreateBlock)
	mux.HandleFunc("PUT /api/blocks/{id}", s.handleUpdateBlock)
	mux.HandleFunc("DELETE /api/blocks/{id}", s.handleDeleteBlock)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.logRequests(s.rateLimit(s.requireAPIKey(mux))),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler exposes the full middleware chain.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("API server started")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Error codes returned in the "code" field.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInvalidRange    = "INVALID_RANGE"
	CodeOutsideHours    = "OUTSIDE_HOURS"
	CodeOverlapConflict = "OVERLAP_CONFLICT"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeUnknownTimezone = "UNKNOWN_TIMEZONE"
	CodeRoomBusy        = "ROOM_BUSY"
	CodeInternal        = "INTERNAL"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeDomainError maps service errors onto status codes.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, blocks.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, CodeInvalidRange, err.Error())
	case errors.Is(err, blocks.ErrInvalidType):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, blocks.ErrOutsideHours):
		writeError(w, http.StatusUnprocessableEntity, CodeOutsideHours, err.Error())
	case errors.Is(err, blocks.ErrOverlapConflict):
		writeError(w, http.StatusConflict, CodeOverlapConflict, err.Error())
	case errors.Is(err, blocks.ErrRoomBusy):
		writeError(w, http.StatusConflict, CodeRoomBusy, err.Error())
	case errors.Is(err, blocks.ErrForbidden):
		writeError(w, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.Is(err, blocks.ErrNotFound), errors.Is(err, blocks.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, schedule.ErrUnknownTimezone):
		writeError(w, http.StatusUnprocessableEntity, CodeUnknownTimezone, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
