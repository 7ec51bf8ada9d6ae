// Package history persists classification events as an append-only log.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeLayout is the timestamp format written to the history log.
const TimeLayout = "2006-01-02 15:04:05"

var (
	ErrMissingHistoryFile = errors.New("history file not found")
	ErrSchemaMismatch     = errors.New("history file has unexpected columns")
)

// Columns is the fixed schema of the CSV history log.
var Columns = []string{"filename", "class_name", "confidence_score", "timestamp"}

// Record is one history row. EventID ties together the rows of one
// classification; only stores with an event column keep it.
type Record struct {
	EventID         string `json:"event_id,omitempty"`
	Filename        string `json:"filename"`
	ClassName       string `json:"class_name"`
	ConfidenceScore string `json:"confidence_score"`
	Timestamp       string `json:"timestamp"`
}

func (r Record) row() []string {
	return []string{r.Filename, r.ClassName, r.ConfidenceScore, r.Timestamp}
}

func recordFromRow(row []string) (Record, error) {
	if len(row) != len(Columns) {
		return Record{}, fmt.Errorf("%w: row has %d fields", ErrSchemaMismatch, len(row))
	}
	return Record{
		Filename:        row[0],
		ClassName:       row[1],
		ConfidenceScore: row[2],
		Timestamp:       row[3],
	}, nil
}

// Time parses the record timestamp in the local zone.
func (r Record) Time() (time.Time, error) {
	return time.ParseInLocation(TimeLayout, r.Timestamp, time.Local)
}

// Store is an append-only history log. Implementations serialise writers.
type Store interface {
	Append(ctx context.Context, records ...Record) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Open returns the store for backend ("csv" or "sqlite").
func Open(backend, csvPath, sqlitePath string) (Store, error) {
	switch backend {
	case "csv":
		return NewCSVStore(csvPath)
	case "sqlite":
		return NewSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown history backend %q", backend)
	}
}
