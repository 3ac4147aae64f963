package scoring

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseGroundTruth(t *testing.T) {
	boxes, err := ParseGroundTruth(strings.NewReader("0 0 10 10\n20  20 30\t30\n\n"))
	if err != nil {
		t.Fatalf("ParseGroundTruth: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("expected 2 boxes, got %d", len(boxes))
	}
	if boxes[1] != box(20, 20, 30, 30) {
		t.Fatalf("unexpected second box %+v", boxes[1])
	}
}

func TestParseGroundTruthMalformed(t *testing.T) {
	for _, input := range []string{
		"0 0 10\n",
		"0 0 10 10 5\n",
		"0 0 ten 10\n",
		"0 0 10 10\n1.5 0 2 2\n",
	} {
		if _, err := ParseGroundTruth(strings.NewReader(input)); !errors.Is(err, ErrMalformedGroundTruth) {
			t.Fatalf("input %q: expected ErrMalformedGroundTruth, got %v", input, err)
		}
	}
}

func TestGroundTruthStoreLoadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip_a.txt")
	if err := os.WriteFile(path, []byte("0 0 10 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewGroundTruthStore(dir)

	boxes, err := store.Load("clip_a")
	if err != nil || len(boxes) != 1 {
		t.Fatalf("Load = %v, %v", boxes, err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if cached, err := store.Load("clip_a"); err != nil || len(cached) != 1 {
		t.Fatalf("expected cached boxes, got %v, %v", cached, err)
	}
}

func TestGroundTruthStoreRejectsUnknownAndTraversal(t *testing.T) {
	store := NewGroundTruthStore(t.TempDir())
	for _, folder := range []string{"missing", "", "..", "../etc/passwd", "a/b"} {
		if _, err := store.Load(folder); !errors.Is(err, ErrGroundTruthNotFound) {
			t.Fatalf("folder %q: expected ErrGroundTruthNotFound, got %v", folder, err)
		}
	}
}

func TestGroundTruthStoreMalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.txt"), []byte("1 2 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewGroundTruthStore(dir).Load("bad"); !errors.Is(err, ErrMalformedGroundTruth) {
		t.Fatalf("expected ErrMalformedGroundTruth, got %v", err)
	}
}
