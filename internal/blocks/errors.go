package blocks

import "errors"

// Mutation errors. Each rejects the write with no partial effect.
var (
	ErrInvalidRange    = errors.New("block end must be after start")
	ErrInvalidType     = errors.New("block type must be a manual block or a reservation")
	ErrOutsideHours    = errors.New("reservation is outside opening hours")
	ErrOverlapConflict = errors.New("block overlaps an existing block")
	ErrNotFound        = errors.New("block not found")
	ErrRoomNotFound    = errors.New("room not found")
	ErrForbidden       = errors.New("caller does not own this studio")
	ErrRoomBusy        = errors.New("room calendar is being modified")
)
