package api

import (
	"net/http"
	"time"

	"studiorent/internal/blocks"
	"studiorent/internal/metrics"
)

// BlockRequest is the body of POST /api/blocks and PUT /api/blocks/{id}.
type BlockRequest struct {
	RoomID  string    `json:"room_id"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	Type    string    `json:"type"`
	Status  string    `json:"status,omitempty"`
	Title   string    `json:"title,omitempty"`
	Note    string    `json:"note,omitempty"`
}

// handleCreateBlock adds a manual block or reservation to a room.
// POST /api/blocks
func (s *HTTPServer) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("blocks_create")
	s.saveBlock(w, r, "", http.StatusCreated)
}

// handleUpdateBlock replaces an existing block.
// PUT /api/blocks/{id}
func (s *HTTPServer) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("blocks_update")
	s.saveBlock(w, r, r.PathValue("id"), http.StatusOK)
}

func (s *HTTPServer) saveBlock(w http.ResponseWriter, r *http.Request, blockID string, status int) {
	var req BlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	if req.RoomID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "room_id is required")
		return
	}
	if req.StartAt.IsZero() || req.EndAt.IsZero() {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "start_at and end_at are required")
		return
	}

	block, err := s.blocks.CreateOrUpdate(r.Context(), blocks.BlockInput{
		ID:      blockID,
		OwnerID: r.Header.Get("X-Owner-ID"),
		RoomID:  req.RoomID,
		StartAt: req.StartAt,
		EndAt:   req.EndAt,
		Type:    req.Type,
		Status:  req.Status,
		Title:   req.Title,
		Note:    req.Note,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, status, block)
}

// handleDeleteBlock removes a block.
// DELETE /api/blocks/{id}
func (s *HTTPServer) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("blocks_delete")

	if err := s.blocks.Delete(r.Context(), r.Header.Get("X-Owner-ID"), r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
