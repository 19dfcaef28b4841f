// Package store persists dialogue score rows so repeated runs can be
// inspected without re-reading artifact files.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ScoreRecord is one persisted dialogue score.
type ScoreRecord struct {
	ChallengeUID string
	MinerUID     int
	MinerHotkey  string
	DialogueUID  string
	Score        float64
	FilePath     string
	CreatedAt    time.Time
}

// SQLiteStore implements score persistence on SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and runs migrations.
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrating database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS dialogue_scores (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			challenge_uid TEXT NOT NULL,
			miner_uid INTEGER NOT NULL,
			miner_hotkey TEXT NOT NULL,
			dialogue_uid TEXT NOT NULL,
			score REAL NOT NULL,
			file_path TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dialogue_scores_challenge
			ON dialogue_scores(challenge_uid, miner_uid)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

// InsertScore records one dialogue score row.
func (s *SQLiteStore) InsertScore(ctx context.Context, record ScoreRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dialogue_scores
			(challenge_uid, miner_uid, miner_hotkey, dialogue_uid, score, file_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ChallengeUID, record.MinerUID, record.MinerHotkey,
		record.DialogueUID, record.Score, record.FilePath, createdAt)
	if err != nil {
		return fmt.Errorf("store: inserting score: %w", err)
	}
	return nil
}

// ScoresForChallenge returns all rows recorded for one challenge, newest
// first.
func (s *SQLiteStore) ScoresForChallenge(ctx context.Context, challengeUID string) ([]ScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT challenge_uid, miner_uid, miner_hotkey, dialogue_uid, score, file_path, created_at
		 FROM dialogue_scores WHERE challenge_uid = ? ORDER BY created_at DESC, id DESC`,
		challengeUID)
	if err != nil {
		return nil, fmt.Errorf("store: querying scores: %w", err)
	}
	defer rows.Close()

	var records []ScoreRecord
	for rows.Next() {
		var record ScoreRecord
		if err := rows.Scan(&record.ChallengeUID, &record.MinerUID, &record.MinerHotkey,
			&record.DialogueUID, &record.Score, &record.FilePath, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning score row: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
