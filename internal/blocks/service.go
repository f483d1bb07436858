// Package blocks owns writes to the calendar block table: range and
// opening-hours validation, the commit-time overlap recheck and ownership.
package blocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studiorent/internal/events"
	"studiorent/internal/metrics"
	"studiorent/internal/model"
)

// Repository is the persistence collaborator of the block store.
type Repository interface {
	GetBlock(ctx context.Context, id string) (*model.CalendarBlock, error)
	GetRoom(ctx context.Context, roomID string) (*model.Room, error)
	GetStudioCalendar(ctx context.Context, studioID string) (*model.StudioCalendar, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side of the repository, valid inside InTx only.
type Tx interface {
	OverlappingBlocks(ctx context.Context, roomID string, start, end time.Time, excludeID string) ([]model.CalendarBlock, error)
	InsertBlock(ctx context.Context, b *model.CalendarBlock) error
	UpdateBlock(ctx context.Context, b *model.CalendarBlock) error
	DeleteBlock(ctx context.Context, id string) error
}

// BlockInput is a create (empty ID) or update request from a studio owner.
// Type and Status are free-text labels folded into enums here.
type BlockInput struct {
	ID      string
	OwnerID string
	RoomID  string
	StartAt time.Time
	EndAt   time.Time
	Type    string
	Status  string
	Title   string
	Note    string
}

// Service validates and commits block mutations.
type Service struct {
	repo   Repository
	locker Locker
	bus    *events.Bus
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a block store service. locker and bus may be nil.
func NewService(repo Repository, locker Locker, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		bus:    bus,
		logger: logger.With().Str("component", "blocks").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrUpdate validates the input and writes it. Checks run in order:
// range, ownership, opening hours (reservations only), then the overlap
// recheck inside the write transaction.
func (s *Service) CreateOrUpdate(ctx context.Context, in BlockInput) (*model.CalendarBlock, error) {
	op := "create"
	if in.ID != "" {
		op = "update"
	}
	block, studioID, err := s.createOrUpdate(ctx, in)
	s.record(op, err)
	if err != nil {
		return nil, err
	}

	eventType := events.BlockCreated
	if op == "update" {
		eventType = events.BlockUpdated
	}
	s.publish(eventType, studioID, block)
	return block, nil
}

func (s *Service) createOrUpdate(ctx context.Context, in BlockInput) (*model.CalendarBlock, string, error) {
	if !in.EndAt.After(in.StartAt) {
		return nil, "", ErrInvalidRange
	}
	blockType := model.ParseBlockType(in.Type)
	if blockType == model.BlockUnknown {
		return nil, "", ErrInvalidType
	}

	var existing *model.CalendarBlock
	if in.ID != "" {
		b, err := s.repo.GetBlock(ctx, in.ID)
		if err != nil {
			return nil, "", fmt.Errorf("get block: %w", err)
		}
		if b == nil {
			return nil, "", ErrNotFound
		}
		// The caller must own the block's current room as well as the target room.
		if _, _, err := s.authorize(ctx, in.OwnerID, b.RoomID); err != nil {
			return nil, "", err
		}
		existing = b
	}

	room, sc, err := s.authorize(ctx, in.OwnerID, in.RoomID)
	if err != nil {
		return nil, "", err
	}

	block := &model.CalendarBlock{
		ID:       in.ID,
		RoomID:   room.ID,
		StartAt:  in.StartAt.UTC(),
		EndAt:    in.EndAt.UTC(),
		Type:     blockType,
		Status:   in.Status,
		Approval: model.ParseApprovalState(in.Status),
		Title:    in.Title,
		Note:     in.Note,
	}

	if block.Type == model.BlockReservation {
		cal, err := sc.Calendar()
		if err != nil {
			return nil, "", err
		}
		if !cal.Contains(block.StartAt, block.EndAt) {
			return nil, "", ErrOutsideHours
		}
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, block.RoomID)
		if err != nil {
			return nil, "", err
		}
		defer unlock()
	}

	now := s.now()
	if existing == nil {
		block.ID = uuid.NewString()
		block.CreatedAt = now
	} else {
		block.CreatedAt = existing.CreatedAt
	}
	block.UpdatedAt = now

	err = s.repo.InTx(ctx, func(tx Tx) error {
		overlapping, err := tx.OverlappingBlocks(ctx, block.RoomID, block.StartAt, block.EndAt, block.ID)
		if err != nil {
			return fmt.Errorf("recheck overlaps: %w", err)
		}
		if len(overlapping) > 0 {
			s.logger.Debug().
				Str("room_id", block.RoomID).
				Str("conflict_id", overlapping[0].ID).
				Msg("Rejecting overlapping block")
			return ErrOverlapConflict
		}
		if existing == nil {
			return tx.InsertBlock(ctx, block)
		}
		return tx.UpdateBlock(ctx, block)
	})
	if err != nil {
		return nil, "", err
	}
	return block, sc.Studio.ID, nil
}

// Delete removes a block. Only the owner of the studio holding the block's
// room may delete it.
func (s *Service) Delete(ctx context.Context, ownerID, blockID string) error {
	block, studioID, err := s.delete(ctx, ownerID, blockID)
	s.record("delete", err)
	if err != nil {
		return err
	}
	s.publish(events.BlockDeleted, studioID, block)
	return nil
}

func (s *Service) delete(ctx context.Context, ownerID, blockID string) (*model.CalendarBlock, string, error) {
	block, err := s.repo.GetBlock(ctx, blockID)
	if err != nil {
		return nil, "", fmt.Errorf("get block: %w", err)
	}
	if block == nil {
		return nil, "", ErrNotFound
	}
	_, sc, err := s.authorize(ctx, ownerID, block.RoomID)
	if err != nil {
		return nil, "", err
	}
	err = s.repo.InTx(ctx, func(tx Tx) error {
		return tx.DeleteBlock(ctx, blockID)
	})
	if err != nil {
		return nil, "", err
	}
	return block, sc.Studio.ID, nil
}

// authorize resolves the room and its studio and checks ownership.
func (s *Service) authorize(ctx context.Context, ownerID, roomID string) (*model.Room, *model.StudioCalendar, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		return nil, nil, ErrRoomNotFound
	}
	sc, err := s.repo.GetStudioCalendar(ctx, room.StudioID)
	if err != nil {
		return nil, nil, fmt.Errorf("get studio: %w", err)
	}
	if sc == nil {
		return nil, nil, ErrRoomNotFound
	}
	if ownerID == "" || sc.Studio.OwnerID != ownerID {
		return nil, nil, ErrForbidden
	}
	return room, sc, nil
}

func (s *Service) record(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidRange):
		result = "invalid_range"
	case errors.Is(err, ErrInvalidType):
		result = "invalid_type"
	case errors.Is(err, ErrOutsideHours):
		result = "outside_hours"
	case errors.Is(err, ErrOverlapConflict):
		result = "overlap"
	case errors.Is(err, ErrForbidden):
		result = "forbidden"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRoomNotFound):
		result = "not_found"
	case errors.Is(err, ErrRoomBusy):
		result = "busy"
	default:
		result = "error"
		s.logger.Error().Err(err).Str("op", op).Msg("Block mutation failed")
	}
	metrics.IncBlockMutation(op, result)
}

func (s *Service) publish(eventType, studioID string, b *model.CalendarBlock) {
	err := s.bus.Publish(events.Event{
		Type:     eventType,
		StudioID: studioID,
		RoomID:   b.RoomID,
		BlockID:  b.ID,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("Event handler failed")
	}
}
