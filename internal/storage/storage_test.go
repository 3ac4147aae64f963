package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bdougie/annotator/internal/models"
	"github.com/bdougie/annotator/internal/storage"
)

func record(annotator string, globalIndex int, boxes ...models.Box) *models.AnnotationRecord {
	groups := make([]models.Group, len(boxes))
	for i, b := range boxes {
		groups[i] = models.Group{GroupID: i + 1, BBox: b}
	}
	return &models.AnnotationRecord{
		AnnotatorID:  annotator,
		GlobalIndex:  globalIndex,
		VideoFolder:  "clip",
		VideoWatched: true,
		Groups:       groups,
	}
}

func ledgers(t *testing.T) map[string]func(t *testing.T) storage.Ledger {
	t.Helper()
	return map[string]func(t *testing.T) storage.Ledger{
		"memory": func(t *testing.T) storage.Ledger {
			return storage.NewMemoryLedger()
		},
		"file": func(t *testing.T) storage.Ledger {
			l, err := storage.NewFileLedger(filepath.Join(t.TempDir(), "annotations.json"), 2)
			if err != nil {
				t.Fatalf("NewFileLedger: %v", err)
			}
			return l
		},
		"sqlite": func(t *testing.T) storage.Ledger {
			l, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "annotations.db"))
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			return l
		},
	}
}

func TestLedgerInsertAndFind(t *testing.T) {
	for name, open := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := open(t)
			defer l.Close()

			rec := record("alice", 3, models.Box{XMin: 1, YMin: 2, XMax: 30, YMax: 40})
			rec.Timestamp = "2024-05-01T10:00:00Z"
			rec.VideoInfo = &models.VideoInfo{TotalFrames: 30, AnnotationFrame: 29}
			id, err := l.Insert(ctx, rec)
			if err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if id == "" || rec.ID != id {
				t.Fatalf("expected generated id, got %q", id)
			}
			if _, err := l.Insert(ctx, record("bob", 3)); err != nil {
				t.Fatalf("Insert: %v", err)
			}

			got, err := l.FindByAnnotator(ctx, "alice")
			if err != nil {
				t.Fatalf("FindByAnnotator: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 record, got %d", len(got))
			}
			r := got[0]
			if r.ID != id || r.GlobalIndex != 3 || r.NumberOfGroups != 1 || !r.VideoWatched {
				t.Fatalf("unexpected record %+v", r)
			}
			if r.Groups[0].BBox != (models.Box{XMin: 1, YMin: 2, XMax: 30, YMax: 40}) {
				t.Fatalf("box did not round trip: %+v", r.Groups[0].BBox)
			}
			if r.VideoInfo == nil || r.VideoInfo.TotalFrames != 30 {
				t.Fatalf("video info did not round trip: %+v", r.VideoInfo)
			}
			if r.Timestamp != rec.Timestamp || r.CreatedAt.IsZero() {
				t.Fatalf("timestamps not kept: %q %v", r.Timestamp, r.CreatedAt)
			}

			none, err := l.FindByAnnotator(ctx, "carol")
			if err != nil || len(none) != 0 {
				t.Fatalf("expected empty history, got %v %v", none, err)
			}
		})
	}
}

func TestLedgerUnknownAnnotator(t *testing.T) {
	for name, open := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := open(t)
			defer l.Close()

			if _, err := l.Insert(ctx, record("", 1)); err != nil {
				t.Fatalf("Insert: %v", err)
			}
			got, err := l.FindByAnnotator(ctx, "unknown")
			if err != nil || len(got) != 1 {
				t.Fatalf("expected record under unknown, got %v %v", got, err)
			}
		})
	}
}

func TestLedgerCounts(t *testing.T) {
	for name, open := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := open(t)
			defer l.Close()

			var recs []*models.AnnotationRecord
			// alice completes clips 1..3, bob misses clip 2, carol repeats clip 1
			for _, g := range []int{1, 2, 3} {
				recs = append(recs, record("alice", g))
			}
			recs = append(recs, record("bob", 1), record("bob", 3))
			recs = append(recs, record("carol", 1), record("carol", 1))
			ids, err := l.InsertMany(ctx, recs)
			if err != nil {
				t.Fatalf("InsertMany: %v", err)
			}
			if len(ids) != len(recs) {
				t.Fatalf("expected %d ids, got %d", len(recs), len(ids))
			}

			n, err := l.CountByGlobalIndex(ctx, 1)
			if err != nil || n != 4 {
				t.Fatalf("CountByGlobalIndex(1) = %d, %v; want 4", n, err)
			}
			n, err = l.CountByGlobalIndex(ctx, 3)
			if err != nil || n != 2 {
				t.Fatalf("CountByGlobalIndex(3) = %d, %v; want 2", n, err)
			}
			n, err = l.CountCompletedAnnotators(ctx, 1, 3)
			if err != nil || n != 1 {
				t.Fatalf("CountCompletedAnnotators(1,3) = %d, %v; want 1", n, err)
			}
			n, err = l.CountCompletedAnnotators(ctx, 1, 1)
			if err != nil || n != 3 {
				t.Fatalf("CountCompletedAnnotators(1,1) = %d, %v; want 3", n, err)
			}
		})
	}
}

func TestFileLedgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "annotations.json")

	l, err := storage.NewFileLedger(path, 10)
	if err != nil {
		t.Fatalf("NewFileLedger: %v", err)
	}
	if _, err := l.Insert(ctx, record("alice", 7)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := l.Insert(ctx, record("alice", 8)); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	reopened, err := storage.NewFileLedger(path, 10)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.FindByAnnotator(ctx, "alice")
	if err != nil || len(got) != 1 || got[0].GlobalIndex != 7 {
		t.Fatalf("expected persisted record, got %v %v", got, err)
	}
}

func TestFileLedgerDropsRecordsOnFailedWrite(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	l, err := storage.NewFileLedger(filepath.Join(dir, "annotations.json"), 1)
	if err != nil {
		t.Fatalf("NewFileLedger: %v", err)
	}

	// A regular file where the ledger directory should be makes every write fail.
	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Insert(ctx, record("alice", 15)); err == nil {
		t.Fatal("expected write error")
	}
	if _, err := l.InsertMany(ctx, []*models.AnnotationRecord{record("alice", 15), record("bob", 15)}); err == nil {
		t.Fatal("expected write error for batch")
	}

	count, err := l.CountByGlobalIndex(ctx, 15)
	if err != nil || count != 0 {
		t.Fatalf("count after failed writes = %d, %v; want 0", count, err)
	}
	recs, err := l.FindByAnnotator(ctx, "alice")
	if err != nil || len(recs) != 0 {
		t.Fatalf("records after failed writes = %v, %v; want none", recs, err)
	}

	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Insert(ctx, record("alice", 15)); err != nil {
		t.Fatalf("Insert after recovery: %v", err)
	}
	if count, _ := l.CountByGlobalIndex(ctx, 15); count != 1 {
		t.Fatalf("count after retry = %d, want 1", count)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "annotations.db")

	l, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, err := l.Insert(ctx, record("alice", 4, models.Box{XMax: 1, YMax: 1})); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	n, err := reopened.CountByGlobalIndex(ctx, 4)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 persisted record, got %d %v", n, err)
	}
}

func TestSQLiteRejectsCorruptTimestamps(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "annotations.db")

	l, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, err := l.Insert(ctx, record("alice", 4)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE annotations SET created_at = 'yesterday'`); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.FindByAnnotator(ctx, "alice"); err == nil {
		t.Fatal("expected error for corrupt created_at")
	}
}

func TestBoxesNear(t *testing.T) {
	ctx := context.Background()
	for name, open := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			defer l.Close()
			searcher, ok := l.(storage.BoxSearcher)
			if !ok {
				t.Fatalf("%T does not search boxes", l)
			}

			recs := []*models.AnnotationRecord{
				record("alice", 9, models.Box{XMin: 0, YMin: 0, XMax: 10, YMax: 10}, models.Box{XMin: 40, YMin: 40, XMax: 60, YMax: 60}),
				record("bob", 9, models.Box{XMin: 2, YMin: 0, XMax: 12, YMax: 10}),
				record("carol", 10, models.Box{XMin: 0, YMin: 0, XMax: 10, YMax: 10}),
			}
			if _, err := l.InsertMany(ctx, recs); err != nil {
				t.Fatalf("InsertMany: %v", err)
			}

			got, err := searcher.BoxesNear(ctx, 9, models.Box{XMin: 1, YMin: 0, XMax: 9, YMax: 10}, 2)
			if err != nil {
				t.Fatalf("BoxesNear: %v", err)
			}
			if len(got) != 2 || got[0].XMin != 0 || got[1].XMin != 2 {
				t.Fatalf("unexpected nearest boxes %+v", got)
			}

			all, err := searcher.BoxesNear(ctx, 9, models.Box{}, 10)
			if err != nil || len(all) != 3 {
				t.Fatalf("expected all 3 boxes of clip 9, got %v %v", all, err)
			}
			if _, err := searcher.BoxesNear(ctx, 9, models.Box{}, 0); err == nil {
				t.Fatal("expected error for zero limit")
			}
		})
	}
}
