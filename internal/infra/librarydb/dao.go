package librarydb

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// FavoriteRow is a favorited station stored as its JSON encoding.
type FavoriteRow struct {
	StationID   string `db:"station_id"`
	StationJSON string `db:"station_json"`
	CreatedAt   string `db:"created_at"`
}

// TrackRow is an uploaded audio file.
type TrackRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	FileName    string `db:"file_name"`
	ContentType string `db:"content_type"`
	Size        int64  `db:"size"`
	AddedAt     string `db:"added_at"`
}

// AddFavorite stores or replaces a favorite.
func (d *DB) AddFavorite(stationID, stationJSON string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return err
	}

	_, err = db.NamedExec(`
		INSERT INTO favorites (station_id, station_json, created_at)
		VALUES (:station_id, :station_json, :created_at)
		ON CONFLICT(station_id) DO UPDATE SET station_json = excluded.station_json
	`, FavoriteRow{
		StationID:   stationID,
		StationJSON: stationJSON,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("insert favorite: %w", err)
	}
	return nil
}

// RemoveFavorite deletes a favorite and reports whether it existed.
func (d *DB) RemoveFavorite(stationID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return false, err
	}

	res, err := db.Exec("DELETE FROM favorites WHERE station_id = ?", stationID)
	if err != nil {
		return false, fmt.Errorf("delete favorite: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IsFavorite reports whether the station is a favorite.
func (d *DB) IsFavorite(stationID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	db, err := d.conn()
	if err != nil {
		return false, err
	}

	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM favorites WHERE station_id = ?", stationID); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListFavorites returns favorites in the order they were added.
func (d *DB) ListFavorites() ([]FavoriteRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	db, err := d.conn()
	if err != nil {
		return nil, err
	}

	rows := []FavoriteRow{}
	if err := db.Select(&rows, "SELECT station_id, station_json, created_at FROM favorites ORDER BY rowid"); err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return rows, nil
}

// InsertTrack stores an uploaded track.
func (d *DB) InsertTrack(t TrackRow) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return err
	}
	if t.AddedAt == "" {
		t.AddedAt = time.Now().UTC().Format(time.RFC3339)
	}

	_, err = db.NamedExec(`
		INSERT INTO local_tracks (id, name, file_name, content_type, size, added_at)
		VALUES (:id, :name, :file_name, :content_type, :size, :added_at)
	`, t)
	if err != nil {
		return fmt.Errorf("insert track: %w", err)
	}
	return nil
}

// GetTrack returns a track by id.
func (d *DB) GetTrack(id string) (*TrackRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	db, err := d.conn()
	if err != nil {
		return nil, err
	}

	var t TrackRow
	if err := db.Get(&t, "SELECT id, name, file_name, content_type, size, added_at FROM local_tracks WHERE id = ?", id); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// ListTracks returns tracks in upload order.
func (d *DB) ListTracks() ([]TrackRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	db, err := d.conn()
	if err != nil {
		return nil, err
	}

	rows := []TrackRow{}
	if err := db.Select(&rows, "SELECT id, name, file_name, content_type, size, added_at FROM local_tracks ORDER BY rowid"); err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	return rows, nil
}

// DeleteTrack removes a track row and reports whether it existed.
func (d *DB) DeleteTrack(id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return false, err
	}

	res, err := db.Exec("DELETE FROM local_tracks WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete track: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetSetting returns a stored setting, or ErrNotFound.
func (d *DB) GetSetting(key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	db, err := d.conn()
	if err != nil {
		return "", err
	}

	var value string
	if err := db.Get(&value, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		return "", notFound(err)
	}
	return value, nil
}

// SetSetting stores a setting.
func (d *DB) SetSetting(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetIntSetting returns a stored integer setting, or def when unset or malformed.
func (d *DB) GetIntSetting(key string, def int) (int, error) {
	raw, err := d.GetSetting(key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, nil
	}
	return v, nil
}
