package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studiorent/internal/blocks"
	"studiorent/internal/model"
)

const blockColumns = `id, room_id, start_at, end_at, type, status, title, note, created_at, updated_at`

// BlocksOverlapping returns blocks of the given rooms intersecting
// [start, end). Touching endpoints do not count.
func (db *DB) BlocksOverlapping(ctx context.Context, roomIDs []string, start, end time.Time) ([]model.CalendarBlock, error) {
	return blocksOverlapping(ctx, db.DB, roomIDs, start, end, "")
}

// GetBlock returns a block by id, or nil.
func (db *DB) GetBlock(ctx context.Context, id string) (*model.CalendarBlock, error) {
	row := db.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM calendar_blocks WHERE id = ?`, id)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", id, err)
	}
	return b, nil
}

// InTx runs fn inside an immediate write transaction. Any error from fn
// rolls the transaction back.
func (db *DB) InTx(ctx context.Context, fn func(tx blocks.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&blockTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type blockTx struct {
	tx *sql.Tx
}

func (t *blockTx) OverlappingBlocks(ctx context.Context, roomID string, start, end time.Time, excludeID string) ([]model.CalendarBlock, error) {
	return blocksOverlapping(ctx, t.tx, []string{roomID}, start, end, excludeID)
}

func (t *blockTx) InsertBlock(ctx context.Context, b *model.CalendarBlock) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO calendar_blocks (`+blockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.RoomID, toMillis(b.StartAt), toMillis(b.EndAt), string(b.Type), b.Status, b.Title, b.Note,
		toMillis(b.CreatedAt), toMillis(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (t *blockTx) UpdateBlock(ctx context.Context, b *model.CalendarBlock) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE calendar_blocks
		SET room_id = ?, start_at = ?, end_at = ?, type = ?, status = ?, title = ?, note = ?, updated_at = ?
		WHERE id = ?`,
		b.RoomID, toMillis(b.StartAt), toMillis(b.EndAt), string(b.Type), b.Status, b.Title, b.Note,
		toMillis(b.UpdatedAt), b.ID,
	)
	if err != nil {
		return fmt.Errorf("update block: %w", err)
	}
	return expectOne(res, b.ID)
}

func (t *blockTx) DeleteBlock(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM calendar_blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return expectOne(res, id)
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("block %s: %w", id, blocks.ErrNotFound)
	}
	return nil
}

func blocksOverlapping(ctx context.Context, q querier, roomIDs []string, start, end time.Time, excludeID string) ([]model.CalendarBlock, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(roomIDs)+3)
	for _, id := range roomIDs {
		args = append(args, id)
	}
	args = append(args, toMillis(end), toMillis(start), excludeID)

	rows, err := q.QueryContext(ctx, `
		SELECT `+blockColumns+`
		FROM calendar_blocks
		WHERE room_id IN (`+placeholders(len(roomIDs))+`)
		  AND start_at < ? AND end_at > ?
		  AND id != ?
		ORDER BY start_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query overlapping blocks: %w", err)
	}
	defer rows.Close()

	var out []model.CalendarBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// scanBlock folds stored labels into enums, so rows written with free-text
// type or status labels are classified the same way as canonical ones.
func scanBlock(row scanner) (*model.CalendarBlock, error) {
	var (
		b                            model.CalendarBlock
		typeLabel                    string
		start, end, created, updated int64
	)
	if err := row.Scan(&b.ID, &b.RoomID, &start, &end, &typeLabel, &b.Status, &b.Title, &b.Note, &created, &updated); err != nil {
		return nil, err
	}
	b.StartAt = fromMillis(start)
	b.EndAt = fromMillis(end)
	b.CreatedAt = fromMillis(created)
	b.UpdatedAt = fromMillis(updated)
	b.Type = model.ParseBlockType(typeLabel)
	b.Approval = model.ParseApprovalState(b.Status)
	return &b, nil
}
