package history

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/Brownie44l1/qualitycast/internal/logger"
)

// CSVStore appends rows to a flat CSV file. Each Append is a single
// O_APPEND write, so rows of one event stay contiguous and earlier rows are
// never rewritten.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

func NewCSVStore(path string) (*CSVStore, error) {
	if path == "" {
		return nil, errors.New("history csv path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	logger.Info("CSV history store initialized", zap.String("path", path))
	return &CSVStore{path: path}, nil
}

func (s *CSVStore) Append(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat history file: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(Columns); err != nil {
			return fmt.Errorf("failed to encode header: %w", err)
		}
	} else if err := checkHeader(f); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(r.row()); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return f.Sync()
}

func (s *CSVStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if errors.Is(err, ErrMissingHistoryFile) {
		return []Record{}, nil
	}
	return records, err
}

func (s *CSVStore) load() ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingHistoryFile, s.path)
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Columns)

	header, err := r.Read()
	if err == io.EOF {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history header: %w", err)
	}
	if !sameColumns(header) {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, header)
	}

	records := []Record{}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read history row: %w", err)
		}
		rec, err := recordFromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *CSVStore) Close() error {
	return nil
}

func checkHeader(f *os.File) error {
	header, err := csv.NewReader(io.NewSectionReader(f, 0, 1<<16)).Read()
	if err != nil {
		return fmt.Errorf("failed to read history header: %w", err)
	}
	if !sameColumns(header) {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, header)
	}
	return nil
}

func sameColumns(header []string) bool {
	if len(header) != len(Columns) {
		return false
	}
	for i, c := range Columns {
		if header[i] != c {
			return false
		}
	}
	return true
}
