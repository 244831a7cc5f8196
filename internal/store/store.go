package store

import (
	"database/sql"
	"strings"

	_ "github.com/glebarez/go-sqlite"
)

// Store persists run audit records, published content records, and
// recurring run schedules.
type Store struct {
	DB *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			niche TEXT,
			topic TEXT,
			status TEXT,
			bundle TEXT,
			created DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			niche TEXT,
			topic TEXT,
			fields TEXT,
			created DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			niche TEXT,
			formats TEXT,
			interval_seconds INTEGER,
			last_run DATETIME,
			status TEXT DEFAULT 'active'
		);`,
	}
	for _, q := range queries {
		_, err = db.Exec(q)
		if err != nil {
			return nil, err
		}
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// SaveRun upserts the audit row for one orchestration run.
func (s *Store) SaveRun(id, niche, topic, status, bundle string) error {
	query := `INSERT INTO runs (id, niche, topic, status, bundle) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET topic=excluded.topic, status=excluded.status, bundle=excluded.bundle`
	_, err := s.DB.Exec(query, id, niche, topic, status, bundle)
	return err
}

// Run is one persisted orchestration run.
type Run struct {
	ID     string
	Niche  string
	Topic  string
	Status string
	Bundle string
}

func (s *Store) GetRun(id string) (*Run, error) {
	query := `SELECT id, niche, topic, status, bundle FROM runs WHERE id = ?`
	row := s.DB.QueryRow(query, id)

	var r Run
	if err := row.Scan(&r.ID, &r.Niche, &r.Topic, &r.Status, &r.Bundle); err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertRecord stores one published content record. Backs the
// write_database_record capability.
func (s *Store) InsertRecord(runID, niche, topic, fields string) error {
	query := `INSERT INTO records (run_id, niche, topic, fields) VALUES (?, ?, ?, ?)`
	_, err := s.DB.Exec(query, runID, niche, topic, fields)
	return err
}

// Schedule is a recurring content-production run.
type Schedule struct {
	ID              int
	Niche           string
	Formats         []string
	IntervalSeconds int
}

// AddSchedule registers a recurring run. An interval of zero means a
// one-shot run on the next scheduler tick.
func (s *Store) AddSchedule(niche string, formats []string, intervalSeconds int) error {
	query := `INSERT INTO schedules (niche, formats, interval_seconds, last_run) VALUES (?, ?, ?, datetime('now', '-365 days'))`
	_, err := s.DB.Exec(query, niche, strings.Join(formats, ","), intervalSeconds)
	return err
}

// GetDueSchedules returns the active schedules whose interval has
// elapsed since their last run.
func (s *Store) GetDueSchedules() ([]Schedule, error) {
	query := `
		SELECT id, niche, formats, interval_seconds
		FROM schedules
		WHERE status = 'active'
		AND (last_run IS NULL OR (julianday('now') - julianday(last_run)) * 86400 >= interval_seconds)`
	rows, err := s.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		var sc Schedule
		var formats string
		if err := rows.Scan(&sc.ID, &sc.Niche, &formats, &sc.IntervalSeconds); err != nil {
			return nil, err
		}
		if formats != "" {
			sc.Formats = strings.Split(formats, ",")
		}
		schedules = append(schedules, sc)
	}
	return schedules, rows.Err()
}

func (s *Store) UpdateScheduleLastRun(id int) error {
	query := `UPDATE schedules SET last_run = datetime('now') WHERE id = ?`
	_, err := s.DB.Exec(query, id)
	return err
}

func (s *Store) DeleteSchedule(id int) error {
	query := `DELETE FROM schedules WHERE id = ?`
	_, err := s.DB.Exec(query, id)
	return err
}
