package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/bdougie/annotator/internal/models"
)

// scriptedRand returns queued values and records the bounds it was asked for.
type scriptedRand struct {
	values []int
	bounds []int
}

func (r *scriptedRand) IntN(n int) int {
	r.bounds = append(r.bounds, n)
	if len(r.values) == 0 {
		return 0
	}
	v := r.values[0]
	r.values = r.values[1:]
	return v % n
}

// fixedCounter returns the saturation for each block from a map.
type fixedCounter struct {
	counts map[int]int
	asked  []int
	err    error
}

func (c *fixedCounter) Saturation(_ context.Context, blocks []models.Block) ([]int, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]int, len(blocks))
	for i, b := range blocks {
		c.asked = append(c.asked, b.Index)
		out[i] = c.counts[b.Index]
	}
	return out, nil
}

func corpusOf(n int) []models.Clip {
	clips := make([]models.Clip, n)
	for i := range clips {
		clips[i] = models.Clip{Index: i, Folder: fmt.Sprintf("clip_%03d", i)}
	}
	return clips
}

// history builds records for the given zero-based clip indices.
func history(annotator string, clipIndices ...int) []models.AnnotationRecord {
	recs := make([]models.AnnotationRecord, len(clipIndices))
	for i, idx := range clipIndices {
		recs[i] = models.AnnotationRecord{AnnotatorID: annotator, GlobalIndex: idx + 1}
	}
	return recs
}

func span(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func newEngine(t *testing.T, rng Rand, resume ResumeStrategy) *Engine {
	t.Helper()
	e, err := New(Options{ClipsPerBlock: 15, AnnotatorsPerClip: 5, Resume: resume, Rand: rng})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNextNewAnnotatorGetsUnsaturatedBlock(t *testing.T) {
	rng := &scriptedRand{values: []int{1}}
	counter := &fixedCounter{counts: map[int]int{0: 5, 1: 4, 2: 7, 3: 0}}
	e := newEngine(t, rng, ResumeByCount)

	got, err := e.Next(context.Background(), Request{Annotator: "a", Clips: corpusOf(64)}, counter)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	// open blocks are [1 3]; draw 1 selects block 3
	if got.Block != 3 {
		t.Fatalf("expected block 3, got %d", got.Block)
	}
	if got.StartIndex != 45 || got.TotalClips != 15 || len(got.Clips) != 15 {
		t.Fatalf("unexpected assignment: start=%d total=%d", got.StartIndex, got.TotalClips)
	}
	if got.Clips[0].Index != 45 || got.Clips[14].Index != 59 {
		t.Fatalf("unexpected clip range %d..%d", got.Clips[0].Index, got.Clips[14].Index)
	}
	if got.Resumed {
		t.Fatal("new block must not be flagged as resumed")
	}
	if len(rng.bounds) != 1 || rng.bounds[0] != 2 {
		t.Fatalf("expected one draw over 2 survivors, got %v", rng.bounds)
	}
}

func TestNextResumesPartialBlock(t *testing.T) {
	for _, resume := range []ResumeStrategy{ResumeByCount, ResumeByGap} {
		t.Run(string(resume), func(t *testing.T) {
			counter := &fixedCounter{}
			e := newEngine(t, &scriptedRand{}, resume)
			// 6 of 15 clips of block 2 annotated in order
			hist := history("a", span(30, 36)...)

			got, err := e.Next(context.Background(), Request{Annotator: "a", History: hist, Clips: corpusOf(60)}, counter)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if got.Block != 2 || !got.Resumed {
				t.Fatalf("expected resumed block 2, got %+v", got)
			}
			if got.TotalClips != 9 || len(got.Clips) != 9 {
				t.Fatalf("expected 9 remaining clips, got %d", got.TotalClips)
			}
			if got.StartIndex != 36 || got.Clips[0].Index != 36 || got.Clips[8].Index != 44 {
				t.Fatalf("unexpected resume range: start=%d first=%d last=%d", got.StartIndex, got.Clips[0].Index, got.Clips[8].Index)
			}
			if len(counter.asked) != 0 {
				t.Fatalf("resumption must not query saturation, asked %v", counter.asked)
			}
		})
	}
}

func TestNextResumeByGapServesMissingClips(t *testing.T) {
	e := newEngine(t, &scriptedRand{}, ResumeByGap)
	hist := history("a", 0, 2, 3, 14)

	got, err := e.Next(context.Background(), Request{Annotator: "a", History: hist, Clips: corpusOf(15)}, &fixedCounter{})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := []int{1, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}
	if len(got.Clips) != len(want) {
		t.Fatalf("expected %d clips, got %d", len(want), len(got.Clips))
	}
	for i, idx := range want {
		if got.Clips[i].Index != idx {
			t.Fatalf("clip %d: got %d want %d", i, got.Clips[i].Index, idx)
		}
	}
	if got.StartIndex != 1 {
		t.Fatalf("expected start index 1, got %d", got.StartIndex)
	}
}

func TestNextPicksAmongPartialBlocksDeterministically(t *testing.T) {
	rng := &scriptedRand{values: []int{1}}
	e := newEngine(t, rng, ResumeByCount)
	hist := append(history("a", 45, 46), history("a", 0, 1, 2)...)

	got, err := e.Next(context.Background(), Request{Annotator: "a", History: hist, Clips: corpusOf(75)}, &fixedCounter{})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	// partial blocks sorted: [0 3]; draw 1 selects block 3
	if got.Block != 3 || got.StartIndex != 47 || got.TotalClips != 13 {
		t.Fatalf("unexpected assignment %+v", got)
	}
	if rng.bounds[0] != 2 {
		t.Fatalf("expected draw over 2 partial blocks, got %v", rng.bounds)
	}
}

func TestNextNeverReoffersCompletedBlock(t *testing.T) {
	e := newEngine(t, rand.New(rand.NewPCG(1, 2)), ResumeByCount)
	hist := history("a", span(0, 15)...)
	counter := &fixedCounter{counts: map[int]int{}}

	for i := 0; i < 50; i++ {
		got, err := e.Next(context.Background(), Request{Annotator: "a", History: hist, Clips: corpusOf(45)}, counter)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got.Block == 0 {
			t.Fatal("completed block 0 was offered again")
		}
	}
	for _, b := range counter.asked {
		if b == 0 {
			t.Fatal("completed block should not be a saturation candidate")
		}
	}
}

func TestNextExhausted(t *testing.T) {
	cases := []struct {
		name    string
		hist    []models.AnnotationRecord
		counts  map[int]int
		exclude map[int]bool
		clips   int
	}{
		{name: "all saturated", counts: map[int]int{0: 5, 1: 6}, clips: 30},
		{name: "completed or saturated", hist: history("a", span(0, 15)...), counts: map[int]int{1: 5}, clips: 30},
		{name: "all completed", hist: history("a", span(0, 30)...), clips: 30},
		{name: "excluded", counts: map[int]int{0: 5}, exclude: map[int]bool{1: true}, clips: 30},
		{name: "no full block", clips: 14},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(t, &scriptedRand{}, ResumeByCount)
			_, err := e.Next(context.Background(), Request{
				Annotator: "a",
				History:   tc.hist,
				Clips:     corpusOf(tc.clips),
				Exclude:   tc.exclude,
			}, &fixedCounter{counts: tc.counts})
			if !errors.Is(err, ErrExhausted) {
				t.Fatalf("expected ErrExhausted, got %v", err)
			}
		})
	}
}

func TestNextDuplicateSubmissionsCountAsComplete(t *testing.T) {
	e := newEngine(t, &scriptedRand{}, ResumeByCount)
	hist := history("a", append(span(0, 15), 3)...)

	got, err := e.Next(context.Background(), Request{Annotator: "a", History: hist, Clips: corpusOf(30)}, &fixedCounter{})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.Block != 1 || got.TotalClips != 15 {
		t.Fatalf("expected fresh block 1, got %+v", got)
	}
}

func TestNextIgnoresRecordsBeyondLastBlock(t *testing.T) {
	e := newEngine(t, &scriptedRand{}, ResumeByCount)
	got, err := e.Next(context.Background(), Request{Annotator: "a", History: history("a", 16), Clips: corpusOf(17)}, &fixedCounter{})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.Block != 0 || got.Resumed {
		t.Fatalf("unexpected assignment %+v", got)
	}
}

func TestNextRejectsInvalidHistory(t *testing.T) {
	e := newEngine(t, &scriptedRand{}, ResumeByCount)
	hist := []models.AnnotationRecord{{ID: "bad", GlobalIndex: 0}}
	_, err := e.Next(context.Background(), Request{Annotator: "a", History: hist, Clips: corpusOf(15)}, &fixedCounter{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNextPropagatesCounterFailure(t *testing.T) {
	e := newEngine(t, &scriptedRand{}, ResumeByCount)
	boom := errors.New("ledger down")
	_, err := e.Next(context.Background(), Request{Annotator: "a", Clips: corpusOf(15)}, &fixedCounter{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected counter error, got %v", err)
	}
}

func TestNextValidation(t *testing.T) {
	rng := &scriptedRand{values: []int{2}}
	e := newEngine(t, rng, ResumeByCount)
	got, err := e.NextValidation(corpusOf(4))
	if err != nil {
		t.Fatalf("NextValidation: %v", err)
	}
	if got.TotalClips != 1 || got.Clips[0].Index != 2 || got.StartIndex != 2 {
		t.Fatalf("unexpected validation assignment %+v", got)
	}
	if _, err := e.NextValidation(nil); err == nil {
		t.Fatal("expected error for empty validation corpus")
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected missing rand error, got %v", err)
	}
	if _, err := New(Options{Rand: &scriptedRand{}, Resume: "sideways"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected resume strategy error, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	progress, err := Summarize(history("a", 20, 0, 16, 16, 1), 15, 2)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(progress) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(progress))
	}
	if progress[0].Block != 0 || progress[0].Count != 2 {
		t.Fatalf("unexpected block 0 progress %+v", progress[0])
	}
	if progress[1].Block != 1 || progress[1].Count != 3 || len(progress[1].Annotated) != 2 {
		t.Fatalf("unexpected block 1 progress %+v", progress[1])
	}
}
