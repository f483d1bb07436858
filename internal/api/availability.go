package api

import (
	"fmt"
	"net/http"
	"time"

	"studiorent/internal/db"
	"studiorent/internal/metrics"
	"studiorent/internal/schedule"
	"studiorent/internal/search"
)

// MaxSearchDurationMinutes caps a single requested session.
const MaxSearchDurationMinutes = 24 * 60

// SearchRequest is the request body for POST /api/availability/search.
type SearchRequest struct {
	Date            string `json:"date"` // Format: YYYY-MM-DD, studio wall clock
	Time            string `json:"time"` // Format: HH:mm
	DurationMinutes int    `json:"duration_minutes"`
	Province        string `json:"province,omitempty"`
	District        string `json:"district,omitempty"`
	RoomType        string `json:"room_type,omitempty"`
}

// SearchResponse lists studios with at least one free matching room.
type SearchResponse struct {
	StudioIDs []string `json:"studio_ids"`
}

// handleAvailabilitySearch returns studios that can host the requested session.
// POST /api/availability/search
func (s *HTTPServer) handleAvailabilitySearch(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_search")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed; use POST")
		return
	}

	var req SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	candidate, err := validateSearchRequest(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	studios, err := s.store.ListStudios(r.Context(), db.StudioFilter{
		Province:   req.Province,
		District:   req.District,
		ActiveOnly: true,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	ids, err := s.finder.FindAvailableStudios(r.Context(), candidate, studios)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{StudioIDs: ids})
}

func validateSearchRequest(req *SearchRequest) (search.Candidate, error) {
	if req.Date == "" || req.Time == "" {
		return search.Candidate{}, fmt.Errorf("date and time are required")
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return search.Candidate{}, fmt.Errorf("invalid date format; expected YYYY-MM-DD")
	}

	startMinutes, err := schedule.ParseClock(req.Time)
	if err != nil || startMinutes >= 24*60 {
		return search.Candidate{}, fmt.Errorf("invalid time format; expected HH:mm")
	}

	if req.DurationMinutes <= 0 || req.DurationMinutes > MaxSearchDurationMinutes {
		return search.Candidate{}, fmt.Errorf("duration_minutes must be between 1 and %d", MaxSearchDurationMinutes)
	}

	return search.Candidate{
		Year:         date.Year(),
		Month:        date.Month(),
		Day:          date.Day(),
		StartMinutes: startMinutes,
		Duration:     time.Duration(req.DurationMinutes) * time.Minute,
		RoomType:     req.RoomType,
	}, nil
}
