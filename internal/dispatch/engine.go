// Package dispatch decides which clips an annotator is served next.
//
// The engine is a pure function of the annotator's history, the ordered
// corpus, a saturation count per candidate block and one random draw. It
// performs no writes. Partially annotated blocks are always resumed before
// a new block is offered; a new block is only offered while its
// saturation count is below the per-clip annotator target.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bdougie/annotator/internal/corpus"
	"github.com/bdougie/annotator/internal/models"
)

var (
	// ErrExhausted means no block remains that this annotator may take.
	ErrExhausted = errors.New("no work available for annotator")
	// ErrInvalidInput flags histories or corpora the engine cannot use.
	ErrInvalidInput = errors.New("invalid input")
)

// Rand is the random source used for every selection.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// LockedRand serializes access to a Rand that is not safe for concurrent
// use, such as *math/rand/v2.Rand.
type LockedRand struct {
	mu  sync.Mutex
	rng Rand
}

// NewLockedRand wraps rng.
func NewLockedRand(rng Rand) *LockedRand {
	return &LockedRand{rng: rng}
}

func (l *LockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.IntN(n)
}

// SaturationCounter reports, for each block, how many annotators have
// already saturated it. Results are positional.
type SaturationCounter interface {
	Saturation(ctx context.Context, blocks []models.Block) ([]int, error)
}

// ResumeStrategy selects how a partially annotated block is resumed.
type ResumeStrategy string

const (
	// ResumeByCount serves the block from local index = clips annotated.
	ResumeByCount ResumeStrategy = "count"
	// ResumeByGap serves exactly the local indices not yet annotated.
	ResumeByGap ResumeStrategy = "gap"
)

// Options configures an Engine.
type Options struct {
	ClipsPerBlock     int
	AnnotatorsPerClip int
	Resume            ResumeStrategy
	Rand              Rand
}

// Engine selects work for annotators.
type Engine struct {
	clipsPerBlock     int
	annotatorsPerClip int
	resume            ResumeStrategy
	rng               Rand
}

// New creates an engine. Zero option values fall back to 15 clips per
// block, 5 annotators per clip and resume-by-count.
func New(opts Options) (*Engine, error) {
	if opts.Rand == nil {
		return nil, fmt.Errorf("random source is required: %w", ErrInvalidInput)
	}
	if opts.ClipsPerBlock == 0 {
		opts.ClipsPerBlock = 15
	}
	if opts.AnnotatorsPerClip == 0 {
		opts.AnnotatorsPerClip = 5
	}
	if opts.Resume == "" {
		opts.Resume = ResumeByCount
	}
	if opts.ClipsPerBlock < 0 || opts.AnnotatorsPerClip < 0 {
		return nil, fmt.Errorf("block size and annotator target must be positive: %w", ErrInvalidInput)
	}
	switch opts.Resume {
	case ResumeByCount, ResumeByGap:
	default:
		return nil, fmt.Errorf("unknown resume strategy %q: %w", opts.Resume, ErrInvalidInput)
	}
	return &Engine{
		clipsPerBlock:     opts.ClipsPerBlock,
		annotatorsPerClip: opts.AnnotatorsPerClip,
		resume:            opts.Resume,
		rng:               opts.Rand,
	}, nil
}

// Request carries everything the engine needs for one decision.
type Request struct {
	Annotator string
	History   []models.AnnotationRecord
	Clips     []models.Clip
	// Exclude lists blocks that must not be offered as new work, e.g.
	// blocks whose slot reservation was just lost.
	Exclude map[int]bool
}

// Next returns the clips to serve next.
func (e *Engine) Next(ctx context.Context, req Request, counter SaturationCounter) (*models.Assignment, error) {
	numBlocks := corpus.NumBlocks(len(req.Clips), e.clipsPerBlock)
	if numBlocks == 0 {
		return nil, fmt.Errorf("corpus of %d clips holds no full block: %w", len(req.Clips), ErrExhausted)
	}

	progress, err := Summarize(req.History, e.clipsPerBlock, numBlocks)
	if err != nil {
		return nil, err
	}

	var partial []BlockProgress
	completed := make(map[int]bool)
	for _, p := range progress {
		if p.Complete(e.resume) {
			completed[p.Block] = true
		} else {
			partial = append(partial, p)
		}
	}

	if len(partial) > 0 {
		chosen := partial[e.rng.IntN(len(partial))]
		return e.resumeBlock(req.Clips, chosen), nil
	}

	candidates := make([]models.Block, 0, numBlocks)
	for b := 0; b < numBlocks; b++ {
		if completed[b] || req.Exclude[b] {
			continue
		}
		candidates = append(candidates, models.Block{Index: b, Size: e.clipsPerBlock})
	}
	if len(candidates) == 0 {
		return nil, ErrExhausted
	}

	counts, err := counter.Saturation(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("count block saturation: %w", err)
	}
	if len(counts) != len(candidates) {
		return nil, fmt.Errorf("saturation counter returned %d counts for %d blocks: %w", len(counts), len(candidates), ErrInvalidInput)
	}

	open := candidates[:0]
	for i, b := range candidates {
		if counts[i] < e.annotatorsPerClip {
			open = append(open, b)
		}
	}
	if len(open) == 0 {
		return nil, ErrExhausted
	}

	chosen := open[e.rng.IntN(len(open))]
	clips := req.Clips[chosen.First() : chosen.Last()+1]
	return &models.Assignment{
		StartIndex: chosen.First(),
		TotalClips: len(clips),
		Clips:      cloneClips(clips),
		Block:      chosen.Index,
	}, nil
}

func (e *Engine) resumeBlock(clips []models.Clip, p BlockProgress) *models.Assignment {
	block := models.Block{Index: p.Block, Size: e.clipsPerBlock}
	blockClips := clips[block.First() : block.Last()+1]

	var served []models.Clip
	switch e.resume {
	case ResumeByGap:
		for local, clip := range blockClips {
			if !p.Annotated[local] {
				served = append(served, clip)
			}
		}
	default:
		served = cloneClips(blockClips[p.Count:])
	}

	return &models.Assignment{
		StartIndex: served[0].Index,
		TotalClips: len(served),
		Clips:      served,
		Block:      p.Block,
		Resumed:    true,
	}
}

// NextValidation picks one validation clip uniformly at random. History is
// irrelevant for validation work.
func (e *Engine) NextValidation(clips []models.Clip) (*models.Assignment, error) {
	if len(clips) == 0 {
		return nil, fmt.Errorf("validation corpus: %w", corpus.ErrCorpusEmpty)
	}
	clip := clips[e.rng.IntN(len(clips))]
	return &models.Assignment{
		StartIndex: clip.Index,
		TotalClips: 1,
		Clips:      []models.Clip{clip},
	}, nil
}

// BlockProgress is one annotator's progress through one block.
type BlockProgress struct {
	Block int
	Size  int
	// Count is the number of clips counted toward the block. Under
	// resume-by-count this is the number of records; duplicates count.
	Count     int
	Annotated map[int]bool
}

// Complete reports whether the annotator has finished the block. Under
// resume-by-gap only distinct clips count.
func (p BlockProgress) Complete(strategy ResumeStrategy) bool {
	if strategy == ResumeByGap {
		return len(p.Annotated) >= p.Size
	}
	return p.Count >= p.Size
}

// Summarize partitions records by block. Records beyond the last full
// block are ignored. The result is sorted by block index.
func Summarize(records []models.AnnotationRecord, clipsPerBlock, numBlocks int) ([]BlockProgress, error) {
	byBlock := make(map[int]*BlockProgress)
	for _, rec := range records {
		if rec.GlobalIndex < 1 {
			return nil, fmt.Errorf("record %q has global index %d: %w", rec.ID, rec.GlobalIndex, ErrInvalidInput)
		}
		block, local := corpus.Locate(rec.ClipIndex(), clipsPerBlock)
		if block >= numBlocks {
			continue
		}
		p, ok := byBlock[block]
		if !ok {
			p = &BlockProgress{Block: block, Size: clipsPerBlock, Annotated: make(map[int]bool)}
			byBlock[block] = p
		}
		p.Count++
		p.Annotated[local] = true
	}

	out := make([]BlockProgress, 0, len(byBlock))
	for _, p := range byBlock {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Block < out[j].Block })
	return out, nil
}

func cloneClips(in []models.Clip) []models.Clip {
	out := make([]models.Clip, len(in))
	copy(out, in)
	return out
}
