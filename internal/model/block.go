package model

import "time"

// BlockType classifies a calendar block.
type BlockType string

const (
	BlockManual      BlockType = "manual_block"
	BlockReservation BlockType = "reservation"
	BlockUnknown     BlockType = "unknown"
)

// ApprovalState is the reservation workflow state of a block.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// CalendarBlock is an occupied interval [StartAt, EndAt) on one room.
type CalendarBlock struct {
	ID        string        `json:"id"`
	RoomID    string        `json:"room_id"`
	StartAt   time.Time     `json:"start_at"`
	EndAt     time.Time     `json:"end_at"`
	Type      BlockType     `json:"type"`
	Status    string        `json:"status,omitempty"` // label as entered, kept for display
	Approval  ApprovalState `json:"approval"`
	Title     string        `json:"title,omitempty"`
	Note      string        `json:"note,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// IsBlocking reports whether the block keeps a room from being offered.
// Pending and rejected reservations leave the slot searchable.
func (b *CalendarBlock) IsBlocking() bool {
	return isBlocking(b.Type, b.Approval)
}

// OverlapsWith checks [start, end) against the block using half-open semantics.
func (b *CalendarBlock) OverlapsWith(start, end time.Time) bool {
	return b.StartAt.Before(end) && b.EndAt.After(start)
}

// Duration returns the length of the block.
func (b *CalendarBlock) Duration() time.Duration {
	return b.EndAt.Sub(b.StartAt)
}

// IsBlockingBlock applies the blocking rule directly to stored labels.
func IsBlockingBlock(typeLabel, statusLabel string) bool {
	return isBlocking(ParseBlockType(typeLabel), ParseApprovalState(statusLabel))
}

func isBlocking(t BlockType, state ApprovalState) bool {
	switch t {
	case BlockManual:
		return true
	case BlockReservation:
		return state == ApprovalApproved
	default:
		return false
	}
}

// HappyHourSlot is one literal discounted window stored for a room.
type HappyHourSlot struct {
	ID      string    `json:"id"`
	RoomID  string    `json:"room_id"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}
