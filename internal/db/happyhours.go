package db

import (
	"context"
	"database/sql"
	"fmt"

	"studiorent/internal/model"
)

// ListHappyHourSlots returns every stored occurrence for the studio's rooms.
func (db *DB) ListHappyHourSlots(ctx context.Context, studioID string) ([]model.HappyHourSlot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT h.id, h.room_id, h.start_at, h.end_at
		FROM happy_hour_slots h
		JOIN rooms r ON r.id = h.room_id
		WHERE r.studio_id = ?
		ORDER BY h.start_at, h.room_id`, studioID)
	if err != nil {
		return nil, fmt.Errorf("list happy hours: %w", err)
	}
	defer rows.Close()

	var out []model.HappyHourSlot
	for rows.Next() {
		var (
			s          model.HappyHourSlot
			start, end int64
		)
		if err := rows.Scan(&s.ID, &s.RoomID, &start, &end); err != nil {
			return nil, err
		}
		s.StartAt = fromMillis(start)
		s.EndAt = fromMillis(end)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReplaceHappyHourSlots swaps the studio's stored occurrences for slots in
// one transaction.
func (db *DB) ReplaceHappyHourSlots(ctx context.Context, studioID string, slots []model.HappyHourSlot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := replaceHappyHours(ctx, tx, studioID, slots); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceHappyHours(ctx context.Context, tx *sql.Tx, studioID string, slots []model.HappyHourSlot) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM happy_hour_slots
		WHERE room_id IN (SELECT id FROM rooms WHERE studio_id = ?)`, studioID); err != nil {
		return fmt.Errorf("clear happy hours: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO happy_hour_slots (id, room_id, start_at, end_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range slots {
		if _, err := stmt.ExecContext(ctx, s.ID, s.RoomID, toMillis(s.StartAt), toMillis(s.EndAt)); err != nil {
			return fmt.Errorf("insert happy hour %s: %w", s.ID, err)
		}
	}
	return nil
}
