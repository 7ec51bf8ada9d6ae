package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Brownie44l1/qualitycast/internal/logger"
)

// SQLiteStore keeps the history in an embedded database with a single
// writer connection.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("history sqlite path is empty")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite history store initialized", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS classification_history (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id         TEXT NOT NULL DEFAULT '',
		filename         TEXT NOT NULL,
		class_name       TEXT NOT NULL,
		confidence_score TEXT NOT NULL,
		timestamp        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_timestamp ON classification_history(timestamp);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Databases created before event ids were recorded lack the column.
	hasEventID, err := s.hasColumn("event_id")
	if err != nil {
		return err
	}
	if !hasEventID {
		if _, err := s.db.Exec(`ALTER TABLE classification_history ADD COLUMN event_id TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add event_id column: %w", err)
		}
	}

	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_event ON classification_history(event_id)`); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) hasColumn(name string) (bool, error) {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info('classification_history')`)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return false, fmt.Errorf("failed to inspect schema: %w", err)
		}
		if col == name {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Append writes all records of one event in a single transaction.
func (s *SQLiteStore) Append(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO classification_history (event_id, filename, class_name, confidence_score, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.EventID, r.Filename, r.ClassName, r.ConfidenceScore, r.Timestamp); err != nil {
			return fmt.Errorf("failed to insert history record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, filename, class_name, confidence_score, timestamp
		FROM classification_history
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanRecords(rows)
}

// Event returns the rows written for one classification event.
func (s *SQLiteStore) Event(ctx context.Context, eventID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, filename, class_name, confidence_score, timestamp
		FROM classification_history
		WHERE event_id = ?
		ORDER BY id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history event: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.EventID, &r.Filename, &r.ClassName, &r.ConfidenceScore, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
