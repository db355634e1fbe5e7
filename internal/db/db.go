// Package db persists gate sessions and per-frame decisions to SQLite so
// past runs can be replayed, charted, and queried from the debug surface.
package db

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/kestrel-robotics/gatekeeper/internal/security"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			ended_at          TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS frames (
			session_id          TEXT,
			frame_index         BIGINT,
			marker_detected     BOOLEAN,
			marker_x            DOUBLE,
			marker_y            DOUBLE,
			marker_width        DOUBLE,
			marker_height       DOUBLE,
			classifier_enabled  BOOLEAN,
			classifier_detected BOOLEAN,
			distance_cm         BIGINT,
			distance_valid      BOOLEAN,
			may_continue        BOOLEAN,
			timestamp           TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS faults (
			session_id        TEXT,
			source            TEXT,
			message           TEXT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS frames_session_idx ON frames (session_id, frame_index);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// Session identifies one continuous run of the capture loop.
type Session struct {
	ID        string     `json:"session_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// FrameRow is one recorded gating decision.
type FrameRow struct {
	SessionID          string    `json:"session_id"`
	FrameIndex         int64     `json:"frame_index"`
	MarkerDetected     bool      `json:"marker_detected"`
	MarkerX            float64   `json:"marker_x"`
	MarkerY            float64   `json:"marker_y"`
	MarkerWidth        float64   `json:"marker_width"`
	MarkerHeight       float64   `json:"marker_height"`
	ClassifierEnabled  bool      `json:"classifier_enabled"`
	ClassifierDetected bool      `json:"classifier_detected"`
	DistanceCM         int64     `json:"distance_cm"`
	DistanceValid      bool      `json:"distance_valid"`
	MayContinue        bool      `json:"may_continue"`
	Timestamp          time.Time `json:"timestamp"`
}

// StartSession inserts a new session row and returns its generated ID.
func (db *DB) StartSession() (string, error) {
	id := uuid.NewString()
	if _, err := db.Exec(
		`INSERT INTO sessions (session_id) VALUES (?)`, id,
	); err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(id string) error {
	if _, err := db.Exec(
		`UPDATE sessions SET ended_at = CURRENT_TIMESTAMP WHERE session_id = ?`, id,
	); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// Sessions returns all recorded sessions, newest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(
		`SELECT session_id, started_at, ended_at FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var ended sql.NullTime
		if err := rows.Scan(&s.ID, &s.StartedAt, &ended); err != nil {
			return nil, err
		}
		if ended.Valid {
			s.EndedAt = &ended.Time
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RecordFrame persists one gating decision.
func (db *DB) RecordFrame(row FrameRow) error {
	_, err := db.Exec(
		`INSERT INTO frames (
			session_id, frame_index, marker_detected, marker_x, marker_y,
			marker_width, marker_height, classifier_enabled, classifier_detected,
			distance_cm, distance_valid, may_continue
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.SessionID, row.FrameIndex, row.MarkerDetected, row.MarkerX, row.MarkerY,
		row.MarkerWidth, row.MarkerHeight, row.ClassifierEnabled, row.ClassifierDetected,
		row.DistanceCM, row.DistanceValid, row.MayContinue,
	)
	return err
}

// Frames returns all recorded decisions for a session in frame order.
func (db *DB) Frames(sessionID string) ([]FrameRow, error) {
	rows, err := db.Query(
		`SELECT session_id, frame_index, marker_detected, marker_x, marker_y,
			marker_width, marker_height, classifier_enabled, classifier_detected,
			distance_cm, distance_valid, may_continue, timestamp
		FROM frames WHERE session_id = ? ORDER BY frame_index`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []FrameRow
	for rows.Next() {
		var f FrameRow
		if err := rows.Scan(
			&f.SessionID, &f.FrameIndex, &f.MarkerDetected, &f.MarkerX, &f.MarkerY,
			&f.MarkerWidth, &f.MarkerHeight, &f.ClassifierEnabled, &f.ClassifierDetected,
			&f.DistanceCM, &f.DistanceValid, &f.MayContinue, &f.Timestamp,
		); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// RecordFault persists a pipeline fault (camera loss, sensor failure).
func (db *DB) RecordFault(sessionID, source, message string) error {
	_, err := db.Exec(
		`INSERT INTO faults (session_id, source, message) VALUES (?, ?, ?)`,
		sessionID, source, message,
	)
	return err
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://gatekeeper.db", db.DB, &tailsql.DBOptions{
		Label: "Gatekeeper DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			name = fmt.Sprintf("backup-%d", time.Now().Unix())
		}
		backupPath := security.SanitizeFilename(name) + ".db"
		if err := security.ValidateExportPath(backupPath); err != nil {
			http.Error(w, "Invalid backup path", http.StatusBadRequest)
			return
		}
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, "Failed to create backup", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backupPath))
		http.ServeFile(w, r, backupPath)
	}))
}
