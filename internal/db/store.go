package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/pose"
)

// ErrDatasetNotFound is returned when no dataset has the requested id.
var ErrDatasetNotFound = errors.New("dataset not found")

// DatasetSummary is one row of the datasets table.
type DatasetSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	InputURI  string    `json:"input_uri,omitempty"`
	Tracks    int       `json:"tracks"`
	Keyframes int       `json:"keyframes"`
	CreatedAt time.Time `json:"created_at"`
}

// ImportDataset stores ds under a new id in a single transaction.
func (db *DB) ImportDataset(ds *pose.Dataset, name string) (string, error) {
	if ds == nil {
		return "", errors.New("import dataset: nil dataset")
	}
	if err := ds.Validate(); err != nil {
		return "", fmt.Errorf("import dataset: %w", err)
	}

	id := uuid.New().String()
	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO datasets (dataset_id, name, input_uri, track_count, keyframe_count, created_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, ds.InputURI, len(ds.Tracks), ds.KeyframeCount(), time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("insert dataset: %w", err)
	}

	trackStmt, err := tx.Prepare(`INSERT INTO tracks (dataset_id, track_index, start_ns, end_ns) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare track insert: %w", err)
	}
	defer trackStmt.Close()

	kfStmt, err := tx.Prepare(`INSERT INTO keyframes (
			dataset_id, track_index, keyframe_index, time_ns, has_landmarks,
			bbox_left, bbox_top, bbox_right, bbox_bottom, attributes_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare keyframe insert: %w", err)
	}
	defer kfStmt.Close()

	lmStmt, err := tx.Prepare(`INSERT INTO landmarks (
			dataset_id, track_index, keyframe_index, landmark_index, name, x, y, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare landmark insert: %w", err)
	}
	defer lmStmt.Close()

	for ti, track := range ds.Tracks {
		if _, err := trackStmt.Exec(id, ti, int64(track.Segment.Start), int64(track.Segment.End)); err != nil {
			return "", fmt.Errorf("insert track %d: %w", ti, err)
		}
		for ki, kf := range track.Keyframes {
			var attrs sql.NullString
			if kf.Attributes != nil {
				b, err := json.Marshal(kf.Attributes)
				if err != nil {
					return "", fmt.Errorf("marshal attributes for track %d keyframe %d: %w", ti, ki, err)
				}
				attrs = sql.NullString{String: string(b), Valid: true}
			}
			bb := kf.BoundingBox
			if _, err := kfStmt.Exec(id, ti, ki, int64(kf.Time), kf.Landmarks != nil,
				bb.Left, bb.Top, bb.Right, bb.Bottom, attrs); err != nil {
				return "", fmt.Errorf("insert track %d keyframe %d: %w", ti, ki, err)
			}
			for li, lm := range kf.Landmarks {
				if _, err := lmStmt.Exec(id, ti, ki, li, lm.Name, lm.Point.X, lm.Point.Y, lm.Confidence); err != nil {
					return "", fmt.Errorf("insert track %d keyframe %d landmark %d: %w", ti, ki, li, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit import: %w", err)
	}
	monitoring.Logf("[store] imported dataset %s (%q): %d tracks, %d keyframes", id, name, len(ds.Tracks), ds.KeyframeCount())
	return id, nil
}

// ListDatasets returns all stored datasets, newest first.
func (db *DB) ListDatasets() ([]DatasetSummary, error) {
	rows, err := db.Query(`SELECT dataset_id, name, input_uri, track_count, keyframe_count, created_unix_nanos
		FROM datasets ORDER BY created_unix_nanos DESC, dataset_id`)
	if err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}
	defer rows.Close()

	var out []DatasetSummary
	for rows.Next() {
		var s DatasetSummary
		var created int64
		if err := rows.Scan(&s.ID, &s.Name, &s.InputURI, &s.Tracks, &s.Keyframes, &created); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		s.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetDataset returns the summary row for id.
func (db *DB) GetDataset(id string) (DatasetSummary, error) {
	var s DatasetSummary
	var created int64
	err := db.QueryRow(`SELECT dataset_id, name, input_uri, track_count, keyframe_count, created_unix_nanos
		FROM datasets WHERE dataset_id = ?`, id).
		Scan(&s.ID, &s.Name, &s.InputURI, &s.Tracks, &s.Keyframes, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return DatasetSummary{}, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if err != nil {
		return DatasetSummary{}, fmt.Errorf("query dataset %s: %w", id, err)
	}
	s.CreatedAt = time.Unix(0, created).UTC()
	return s, nil
}

// LoadDataset rebuilds a stored dataset with its original track, keyframe and
// landmark order.
func (db *DB) LoadDataset(id string) (*pose.Dataset, error) {
	summary, err := db.GetDataset(id)
	if err != nil {
		return nil, err
	}

	ds := &pose.Dataset{InputURI: summary.InputURI, Tracks: make([]pose.Track, 0, summary.Tracks)}

	trackRows, err := db.Query(`SELECT track_index, start_ns, end_ns FROM tracks
		WHERE dataset_id = ? ORDER BY track_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	for trackRows.Next() {
		var ti int
		var start, end int64
		if err := trackRows.Scan(&ti, &start, &end); err != nil {
			trackRows.Close()
			return nil, fmt.Errorf("scan track: %w", err)
		}
		if ti != len(ds.Tracks) {
			trackRows.Close()
			return nil, fmt.Errorf("dataset %s: track index %d out of sequence", id, ti)
		}
		ds.Tracks = append(ds.Tracks, pose.Track{
			Segment:   pose.Segment{Start: pose.TimeOffset(start), End: pose.TimeOffset(end)},
			Keyframes: []pose.Keyframe{},
		})
	}
	trackRows.Close()
	if err := trackRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}

	kfRows, err := db.Query(`SELECT track_index, keyframe_index, time_ns, has_landmarks,
			bbox_left, bbox_top, bbox_right, bbox_bottom, attributes_json
		FROM keyframes WHERE dataset_id = ? ORDER BY track_index, keyframe_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query keyframes: %w", err)
	}
	for kfRows.Next() {
		var ti, ki int
		var t int64
		var hasLandmarks bool
		var kf pose.Keyframe
		var attrs sql.NullString
		bb := &kf.BoundingBox
		if err := kfRows.Scan(&ti, &ki, &t, &hasLandmarks, &bb.Left, &bb.Top, &bb.Right, &bb.Bottom, &attrs); err != nil {
			kfRows.Close()
			return nil, fmt.Errorf("scan keyframe: %w", err)
		}
		if ti < 0 || ti >= len(ds.Tracks) || ki != len(ds.Tracks[ti].Keyframes) {
			kfRows.Close()
			return nil, fmt.Errorf("dataset %s: keyframe %d/%d out of sequence", id, ti, ki)
		}
		kf.Time = pose.TimeOffset(t)
		if hasLandmarks {
			kf.Landmarks = []pose.Landmark{}
		}
		if attrs.Valid {
			if err := json.Unmarshal([]byte(attrs.String), &kf.Attributes); err != nil {
				kfRows.Close()
				return nil, fmt.Errorf("decode attributes for track %d keyframe %d: %w", ti, ki, err)
			}
		}
		ds.Tracks[ti].Keyframes = append(ds.Tracks[ti].Keyframes, kf)
	}
	kfRows.Close()
	if err := kfRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyframes: %w", err)
	}

	lmRows, err := db.Query(`SELECT track_index, keyframe_index, name, x, y, confidence
		FROM landmarks WHERE dataset_id = ? ORDER BY track_index, keyframe_index, landmark_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query landmarks: %w", err)
	}
	defer lmRows.Close()
	for lmRows.Next() {
		var ti, ki int
		var lm pose.Landmark
		if err := lmRows.Scan(&ti, &ki, &lm.Name, &lm.Point.X, &lm.Point.Y, &lm.Confidence); err != nil {
			return nil, fmt.Errorf("scan landmark: %w", err)
		}
		if ti < 0 || ti >= len(ds.Tracks) || ki < 0 || ki >= len(ds.Tracks[ti].Keyframes) {
			return nil, fmt.Errorf("dataset %s: orphan landmark at %d/%d", id, ti, ki)
		}
		kf := &ds.Tracks[ti].Keyframes[ki]
		kf.Landmarks = append(kf.Landmarks, lm)
	}
	if err := lmRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate landmarks: %w", err)
	}

	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", id, err)
	}
	return ds, nil
}

// DeleteDataset removes a dataset and all its rows.
func (db *DB) DeleteDataset(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"landmarks", "keyframes", "tracks"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE dataset_id = ?", id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := tx.Exec(`DELETE FROM datasets WHERE dataset_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	monitoring.Logf("[store] deleted dataset %s", id)
	return nil
}
