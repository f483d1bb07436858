package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"studiorent/internal/config"
)

// SyncStudiosFromConfig applies studios.yaml to the database. It upserts
// studios and rooms, seeds calendar settings for studios that have none and
// marks studios missing from the file inactive. Settings edited by owners
// are never overwritten.
func (db *DB) SyncStudiosFromConfig(ctx context.Context, cfg *config.StudiosConfig) error {
	if cfg == nil {
		return fmt.Errorf("studios config is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(time.Now())
	seen := make(map[string]struct{})

	for i := range cfg.Studios {
		st := &cfg.Studios[i]
		studio := st.Studio()

		hours, err := json.Marshal(studio.OpeningHours[:])
		if err != nil {
			return fmt.Errorf("encode opening hours %s: %w", st.ID, err)
		}

		// Preserve created_at if the studio already exists.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO studios (id, owner_id, name, province, district, opening_hours, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				owner_id = excluded.owner_id,
				name = excluded.name,
				province = excluded.province,
				district = excluded.district,
				opening_hours = excluded.opening_hours,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			studio.ID, studio.OwnerID, studio.Name, studio.Province, studio.District, string(hours), studio.IsActive, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync studio %s: %w", st.ID, err)
		}
		seen[st.ID] = struct{}{}

		for _, room := range studio.Rooms {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO rooms (id, studio_id, name, type)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					studio_id = excluded.studio_id,
					name = excluded.name,
					type = excluded.type`,
				room.ID, room.StudioID, room.Name, room.Type,
			)
			if err != nil {
				return fmt.Errorf("sync room %s: %w", room.ID, err)
			}
		}

		settings := st.Settings(cfg.Defaults)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO calendar_settings (studio_id, day_cutoff_hour, timezone, slot_step_minutes, happy_hour_enabled, updated_at)
			VALUES (?, ?, ?, ?, 0, ?)
			ON CONFLICT(studio_id) DO NOTHING`,
			settings.StudioID, settings.DayCutoffHour, settings.Timezone, settings.SlotStepMinutes, now,
		)
		if err != nil {
			return fmt.Errorf("seed settings %s: %w", st.ID, err)
		}
	}

	// Deactivate studios that disappeared from config.
	rows, err := tx.QueryContext(ctx, `SELECT id FROM studios WHERE is_active = 1`)
	if err != nil {
		return err
	}
	var missing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range missing {
		if _, err := tx.ExecContext(ctx, `UPDATE studios SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate studio %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	db.logger.Info().Int("studios", len(seen)).Int("deactivated", len(missing)).Msg("Studios synced from config")
	return nil
}
