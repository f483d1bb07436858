package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studiorent/internal/model"
	"studiorent/internal/schedule"
)

// StudioFilter narrows ListStudios. Empty fields match everything; province
// and district compare case- and diacritic-insensitively.
type StudioFilter struct {
	Province   string
	District   string
	ActiveOnly bool
}

const studioColumns = `
	s.id, s.owner_id, s.name, s.province, s.district, s.opening_hours, s.is_active, s.created_at, s.updated_at,
	c.studio_id, c.day_cutoff_hour, c.timezone, c.slot_step_minutes, c.happy_hour_enabled, c.weekly_hours, c.updated_at`

const studioFrom = `
	FROM studios s
	LEFT JOIN calendar_settings c ON c.studio_id = s.id`

// ListStudios returns studios with their rooms and settings.
func (db *DB) ListStudios(ctx context.Context, filter StudioFilter) ([]model.StudioCalendar, error) {
	query := `SELECT ` + studioColumns + studioFrom
	if filter.ActiveOnly {
		query += ` WHERE s.is_active = 1`
	}
	query += ` ORDER BY s.id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list studios: %w", err)
	}
	defer rows.Close()

	var out []model.StudioCalendar
	index := make(map[string]int)
	province := model.Fold(filter.Province)
	district := model.Fold(filter.District)
	for rows.Next() {
		sc, err := scanStudio(rows)
		if err != nil {
			return nil, err
		}
		if province != "" && model.Fold(sc.Studio.Province) != province {
			continue
		}
		if district != "" && model.Fold(sc.Studio.District) != district {
			continue
		}
		index[sc.Studio.ID] = len(out)
		out = append(out, *sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	rooms, err := db.QueryContext(ctx, `SELECT id, studio_id, name, type FROM rooms ORDER BY studio_id, id`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rooms.Close()
	for rooms.Next() {
		var r model.Room
		if err := rooms.Scan(&r.ID, &r.StudioID, &r.Name, &r.Type); err != nil {
			return nil, err
		}
		if i, ok := index[r.StudioID]; ok {
			out[i].Studio.Rooms = append(out[i].Studio.Rooms, r)
		}
	}
	return out, rooms.Err()
}

// GetStudioCalendar returns the studio with rooms and settings, or nil.
func (db *DB) GetStudioCalendar(ctx context.Context, studioID string) (*model.StudioCalendar, error) {
	row := db.QueryRowContext(ctx, `SELECT `+studioColumns+studioFrom+` WHERE s.id = ?`, studioID)
	sc, err := scanStudio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rooms, err := db.QueryContext(ctx, `SELECT id, studio_id, name, type FROM rooms WHERE studio_id = ? ORDER BY id`, studioID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rooms.Close()
	for rooms.Next() {
		var r model.Room
		if err := rooms.Scan(&r.ID, &r.StudioID, &r.Name, &r.Type); err != nil {
			return nil, err
		}
		sc.Studio.Rooms = append(sc.Studio.Rooms, r)
	}
	return sc, rooms.Err()
}

// GetRoom returns a room by id, or nil.
func (db *DB) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	var r model.Room
	err := db.QueryRowContext(ctx, `SELECT id, studio_id, name, type FROM rooms WHERE id = ?`, roomID).
		Scan(&r.ID, &r.StudioID, &r.Name, &r.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return &r, nil
}

// UpsertCalendarSettings stores the studio's settings row.
func (db *DB) UpsertCalendarSettings(ctx context.Context, s *model.CalendarSettings) error {
	return upsertSettings(ctx, db, s)
}

// SaveCalendarSettings stores the settings row and, when happyHours is
// non-nil, replaces the studio's happy-hour occurrences in the same
// transaction.
func (db *DB) SaveCalendarSettings(ctx context.Context, s *model.CalendarSettings, happyHours []model.HappyHourSlot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertSettings(ctx, tx, s); err != nil {
		return err
	}
	if happyHours != nil {
		if err := replaceHappyHours(ctx, tx, s.StudioID, happyHours); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsertSettings(ctx context.Context, q querier, s *model.CalendarSettings) error {
	var weekly sql.NullString
	if s.WeeklyHours != nil {
		data, err := json.Marshal(s.WeeklyHours[:])
		if err != nil {
			return fmt.Errorf("encode weekly hours: %w", err)
		}
		weekly = sql.NullString{String: string(data), Valid: true}
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO calendar_settings (studio_id, day_cutoff_hour, timezone, slot_step_minutes, happy_hour_enabled, weekly_hours, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(studio_id) DO UPDATE SET
			day_cutoff_hour = excluded.day_cutoff_hour,
			timezone = excluded.timezone,
			slot_step_minutes = excluded.slot_step_minutes,
			happy_hour_enabled = excluded.happy_hour_enabled,
			weekly_hours = excluded.weekly_hours,
			updated_at = excluded.updated_at`,
		s.StudioID, s.DayCutoffHour, s.Timezone, s.SlotStepMinutes, s.HappyHourEnabled, weekly, toMillis(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert calendar settings %s: %w", s.StudioID, err)
	}
	return nil
}

func scanStudio(row scanner) (*model.StudioCalendar, error) {
	var (
		sc                            model.StudioCalendar
		opening                       sql.NullString
		createdAt, updatedAt          int64
		settingsID, timezone, weekly  sql.NullString
		cutoff, step, settingsUpdated sql.NullInt64
		happyHours                    sql.NullBool
	)
	err := row.Scan(
		&sc.Studio.ID, &sc.Studio.OwnerID, &sc.Studio.Name, &sc.Studio.Province, &sc.Studio.District,
		&opening, &sc.Studio.IsActive, &createdAt, &updatedAt,
		&settingsID, &cutoff, &timezone, &step, &happyHours, &weekly, &settingsUpdated,
	)
	if err != nil {
		return nil, err
	}

	sc.Studio.OpeningHours = schedule.DecodeWeek([]byte(opening.String))
	sc.Studio.CreatedAt = fromMillis(createdAt)
	sc.Studio.UpdatedAt = fromMillis(updatedAt)

	if settingsID.Valid {
		settings := &model.CalendarSettings{
			StudioID:         settingsID.String,
			DayCutoffHour:    int(cutoff.Int64),
			Timezone:         timezone.String,
			SlotStepMinutes:  int(step.Int64),
			HappyHourEnabled: happyHours.Bool,
			UpdatedAt:        fromMillis(settingsUpdated.Int64),
		}
		if weekly.Valid && weekly.String != "" {
			week := schedule.DecodeWeek([]byte(weekly.String))
			settings.WeeklyHours = &week
		}
		sc.Settings = settings
	}
	return &sc, nil
}
