package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdougie/annotator/internal/models"
)

// ErrClosed is returned by ledgers used after Close.
var ErrClosed = errors.New("ledger is closed")

// Ledger is the annotation store. Records are immutable once inserted.
type Ledger interface {
	// Insert stores one record and returns its ID.
	Insert(ctx context.Context, rec *models.AnnotationRecord) (string, error)

	// InsertMany stores several records, all or nothing where the backend
	// supports transactions.
	InsertMany(ctx context.Context, recs []*models.AnnotationRecord) ([]string, error)

	// FindByAnnotator returns every record of one annotator.
	FindByAnnotator(ctx context.Context, annotatorID string) ([]models.AnnotationRecord, error)

	// CountByGlobalIndex counts records for one 1-based global clip index.
	CountByGlobalIndex(ctx context.Context, globalIndex int) (int, error)

	// CountCompletedAnnotators counts annotators who have a record for every
	// global index in [firstGlobal, lastGlobal].
	CountCompletedAnnotators(ctx context.Context, firstGlobal, lastGlobal int) (int, error)

	// Close releases resources, flushing pending writes.
	Close() error
}

// stamp fills server-side fields before insertion.
func stamp(rec *models.AnnotationRecord, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AnnotatorID == "" {
		rec.AnnotatorID = "unknown"
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	rec.NumberOfGroups = len(rec.Groups)
}

// FileLedger keeps records in memory and persists them to a JSON file in
// batches. An empty path keeps everything in memory.
type FileLedger struct {
	mu        sync.Mutex
	path      string
	batchSize int
	records   []models.AnnotationRecord
	pending   int
	closed    bool
}

// NewFileLedger opens (or creates) a JSON ledger at path. Records are
// written to disk once batchSize inserts are pending and on Close.
func NewFileLedger(path string, batchSize int) (*FileLedger, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	l := &FileLedger{path: path, batchSize: batchSize}
	if path == "" {
		return l, nil
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &l.records); err != nil {
			return nil, fmt.Errorf("failed to unmarshal existing records: %w", err)
		}
	}
	return l, nil
}

// NewMemoryLedger returns a ledger that never touches disk.
func NewMemoryLedger() *FileLedger {
	return &FileLedger{batchSize: 1}
}

func (l *FileLedger) Insert(ctx context.Context, rec *models.AnnotationRecord) (string, error) {
	ids, err := l.InsertMany(ctx, []*models.AnnotationRecord{rec})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (l *FileLedger) InsertMany(_ context.Context, recs []*models.AnnotationRecord) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	now := time.Now().UTC()
	before, pendingBefore := len(l.records), l.pending
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		stamp(rec, now)
		l.records = append(l.records, *rec)
		ids = append(ids, rec.ID)
	}
	l.pending += len(recs)

	// Write to disk when batch is full
	if l.pending >= l.batchSize {
		if err := l.flush(); err != nil {
			// A failed write must not leave the batch visible to counts.
			clear(l.records[before:])
			l.records = l.records[:before]
			l.pending = pendingBefore
			return nil, err
		}
	}
	return ids, nil
}

func (l *FileLedger) FindByAnnotator(_ context.Context, annotatorID string) ([]models.AnnotationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	var out []models.AnnotationRecord
	for _, rec := range l.records {
		if rec.AnnotatorID == annotatorID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *FileLedger) CountByGlobalIndex(_ context.Context, globalIndex int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	count := 0
	for _, rec := range l.records {
		if rec.GlobalIndex == globalIndex {
			count++
		}
	}
	return count, nil
}

func (l *FileLedger) CountCompletedAnnotators(_ context.Context, firstGlobal, lastGlobal int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	seen := make(map[string]map[int]bool)
	for _, rec := range l.records {
		if rec.GlobalIndex < firstGlobal || rec.GlobalIndex > lastGlobal {
			continue
		}
		if seen[rec.AnnotatorID] == nil {
			seen[rec.AnnotatorID] = make(map[int]bool)
		}
		seen[rec.AnnotatorID][rec.GlobalIndex] = true
	}
	want := lastGlobal - firstGlobal + 1
	count := 0
	for _, clips := range seen {
		if len(clips) == want {
			count++
		}
	}
	return count, nil
}

// Close flushes and closes the ledger.
func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	err := l.flush()
	l.closed = true
	return err
}

// flush rewrites the whole file through a temp file and rename.
func (l *FileLedger) flush() error {
	if l.path == "" || l.pending == 0 {
		l.pending = 0
		return nil
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory for ledger: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".annotations-*.json")
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(l.records); err != nil {
		tmp.Close()
		return fmt.Errorf("encode records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger file: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}

	l.pending = 0
	return nil
}
