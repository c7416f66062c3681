package execution

import (
	"context"
	"dexarb/internal/domain"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Log is the append-only record of successful executions
type Log interface {
	Append(ctx context.Context, rec domain.ExecutionRecord) error
}

// FileJournal appends one JSON document per line
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func OpenFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(_ context.Context, rec domain.ExecutionRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err = j.f.Write(line); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return j.f.Sync()
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// TeeLog writes to every log and joins their errors
type TeeLog []Log

func (t TeeLog) Append(ctx context.Context, rec domain.ExecutionRecord) error {
	var errs []error
	for _, l := range t {
		if err := l.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
