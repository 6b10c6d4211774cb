package statedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/klafs-vdc/internal/bridges/klafs"
)

// Setting keys.
const (
	KeyZoneID        = klafs.SettingZoneID
	KeyDefaultZoneID = klafs.SettingDefaultZoneID
	KeyVDCDSUID      = "vdc_dsuid"
	KeyLibDSUID      = "lib_dsuid"
	KeyAuthCookie    = "aspxauth"
)

// sceneColumns is the SELECT column list for scene queries.
const sceneColumns = `id, powered_on, mode, sauna_temperature, sanarium_temperature,
			ir_temperature, humidity_level, ir_level, show_bathing_hour,
			bathing_hours, bathing_minutes, selected_hour, selected_minute`

// Repository implements klafs.StateRepository on SQLite.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new SQLite-backed repository.
//
// Parameters:
//   - db: Open SQLite connection with the schema migrated
//
// Returns:
//   - *Repository: Repository instance ready for use
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// GetSetting returns the value stored under key.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("querying setting %s: %w", key, err)
	}
	return value, nil
}

// SaveSetting upserts a setting.
func (r *Repository) SaveSetting(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("setting key is required")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, r.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	return nil
}

// Settings returns every stored setting.
func (r *Repository) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}
	return out, nil
}

// SaveScene upserts a scene at the given slot.
func (r *Repository) SaveScene(ctx context.Context, slot int, sc klafs.Scene) error {
	query := `
		INSERT INTO scenes (
			id, slot, powered_on, mode, sauna_temperature, sanarium_temperature,
			ir_temperature, humidity_level, ir_level, show_bathing_hour,
			bathing_hours, bathing_minutes, selected_hour, selected_minute, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slot = excluded.slot,
			powered_on = excluded.powered_on,
			mode = excluded.mode,
			sauna_temperature = excluded.sauna_temperature,
			sanarium_temperature = excluded.sanarium_temperature,
			ir_temperature = excluded.ir_temperature,
			humidity_level = excluded.humidity_level,
			ir_level = excluded.ir_level,
			show_bathing_hour = excluded.show_bathing_hour,
			bathing_hours = excluded.bathing_hours,
			bathing_minutes = excluded.bathing_minutes,
			selected_hour = excluded.selected_hour,
			selected_minute = excluded.selected_minute,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		sc.ID,
		slot,
		boolToInt(sc.IsPoweredOn),
		sc.Mode.String(),
		sc.SaunaTemperature,
		sc.SanariumTemperature,
		sc.IRTemperature,
		sc.HumidityLevel,
		sc.IRLevel,
		boolToInt(sc.ShowBathingHour),
		sc.BathingHours,
		sc.BathingMinutes,
		sc.SelectedHour,
		sc.SelectedMinute,
		r.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving scene %d: %w", sc.ID, err)
	}
	return nil
}

// ListScenes returns all scenes ordered by slot.
func (r *Repository) ListScenes(ctx context.Context) ([]klafs.Scene, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sceneColumns+` FROM scenes ORDER BY slot, id`)
	if err != nil {
		return nil, fmt.Errorf("querying scenes: %w", err)
	}
	defer rows.Close()

	var scenes []klafs.Scene
	for rows.Next() {
		var (
			sc                   klafs.Scene
			poweredOn, showHours int
			mode                 string
		)
		if err := rows.Scan(
			&sc.ID, &poweredOn, &mode,
			&sc.SaunaTemperature, &sc.SanariumTemperature, &sc.IRTemperature,
			&sc.HumidityLevel, &sc.IRLevel, &showHours,
			&sc.BathingHours, &sc.BathingMinutes, &sc.SelectedHour, &sc.SelectedMinute,
		); err != nil {
			return nil, fmt.Errorf("scanning scene: %w", err)
		}
		sc.IsPoweredOn = poweredOn != 0
		sc.ShowBathingHour = showHours != 0
		if sc.Mode, err = klafs.ParseMode(mode); err != nil {
			return nil, fmt.Errorf("scene %d: %w", sc.ID, err)
		}
		scenes = append(scenes, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scenes: %w", err)
	}
	return scenes, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
