package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bdougie/annotator/internal/models"
	"github.com/bdougie/annotator/internal/storage"
)

type failingLedger struct {
	storage.Ledger
	err error
}

func (f failingLedger) CountByGlobalIndex(context.Context, int) (int, error) {
	return 0, f.err
}

func TestCounterModes(t *testing.T) {
	ctx := context.Background()
	l := storage.NewMemoryLedger()
	blocks := []models.Block{{Index: 0, Size: 3}, {Index: 1, Size: 3}}

	var recs []*models.AnnotationRecord
	// block 0: alice complete, bob skipped clip 2 but annotated the last clip
	for _, g := range []int{1, 2, 3} {
		recs = append(recs, record("alice", g))
	}
	recs = append(recs, record("bob", 1), record("bob", 3))
	// block 1: carol touched only the last clip twice
	recs = append(recs, record("carol", 6), record("carol", 6))
	if _, err := l.InsertMany(ctx, recs); err != nil {
		t.Fatalf("InsertMany: %v", err)
	}

	cases := []struct {
		mode storage.SaturationMode
		want []int
	}{
		{mode: storage.SaturationLastClip, want: []int{2, 2}},
		{mode: storage.SaturationBlock, want: []int{1, 0}},
		{mode: "", want: []int{2, 2}},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			c, err := storage.NewCounter(l, tc.mode)
			if err != nil {
				t.Fatalf("NewCounter: %v", err)
			}
			got, err := c.Saturation(ctx, blocks)
			if err != nil {
				t.Fatalf("Saturation: %v", err)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("block %d: got %d want %d", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestCounterRejectsUnknownMode(t *testing.T) {
	if _, err := storage.NewCounter(storage.NewMemoryLedger(), "median"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCounterPropagatesLedgerError(t *testing.T) {
	boom := errors.New("ledger down")
	c, err := storage.NewCounter(failingLedger{err: boom}, storage.SaturationLastClip)
	if err != nil {
		t.Fatalf("NewCounter: %v", err)
	}
	_, err = c.Saturation(context.Background(), []models.Block{{Index: 0, Size: 15}, {Index: 1, Size: 15}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected ledger error, got %v", err)
	}
}

func TestCounterEmptyBlocks(t *testing.T) {
	c, err := storage.NewCounter(storage.NewMemoryLedger(), storage.SaturationBlock)
	if err != nil {
		t.Fatalf("NewCounter: %v", err)
	}
	got, err := c.Saturation(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no counts, got %v %v", got, err)
	}
}
