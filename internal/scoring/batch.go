package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bdougie/annotator/internal/models"
)

const defaultWorkers = 4

// Submission is one clip's predicted boxes.
type Submission struct {
	Folder      string
	Predictions []models.Box
}

// Result is the outcome of scoring one submission.
type Result struct {
	Folder      string
	Score       float64
	Matches     int
	GroundTruth int
	Predictions int
	Err         error
}

// Batch scores many submissions on a fixed pool of workers.
type Batch struct {
	scorer  Scorer
	truths  *GroundTruthStore
	workers int
	logger  *slog.Logger
}

// NewBatch creates a batch scorer. workers <= 0 selects 4.
func NewBatch(scorer Scorer, truths *GroundTruthStore, workers int, logger *slog.Logger) *Batch {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{scorer: scorer, truths: truths, workers: workers, logger: logger}
}

type workItem struct {
	pos        int
	submission Submission
}

// Run scores every submission. Results keep the input order; a failed
// submission carries its error instead of aborting the batch.
func (b *Batch) Run(ctx context.Context, submissions []Submission) []Result {
	results := make([]Result, len(submissions))
	workChan := make(chan workItem, len(submissions))

	remaining := atomic.Int64{}
	remaining.Store(int64(len(submissions)))

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workChan {
				results[work.pos] = b.scoreOne(ctx, work.submission)
				left := remaining.Add(-1)
				b.logger.Debug("scored submission",
					"folder", work.submission.Folder,
					"score", results[work.pos].Score,
					"remaining", left)
			}
		}()
	}

	for i, sub := range submissions {
		workChan <- workItem{pos: i, submission: sub}
	}
	close(workChan)
	wg.Wait()

	return results
}

func (b *Batch) scoreOne(ctx context.Context, sub Submission) Result {
	res := Result{Folder: sub.Folder, Predictions: len(sub.Predictions)}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	truth, err := b.truths.Load(sub.Folder)
	if err != nil {
		res.Err = fmt.Errorf("load ground truth: %w", err)
		return res
	}
	res.GroundTruth = len(truth)
	res.Matches = b.scorer.Matches(truth, sub.Predictions)
	res.Score = Dice(res.Matches, res.GroundTruth, res.Predictions)
	return res
}
