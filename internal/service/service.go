// Package service ties the ledger, corpus, dispatch engine and scorer
// together into the operations the HTTP API and CLI expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdougie/annotator/internal/corpus"
	"github.com/bdougie/annotator/internal/dispatch"
	"github.com/bdougie/annotator/internal/models"
	"github.com/bdougie/annotator/internal/reservation"
	"github.com/bdougie/annotator/internal/scoring"
	"github.com/bdougie/annotator/internal/storage"
)

var (
	// ErrLedgerUnavailable wraps ledger failures surfaced to callers.
	ErrLedgerUnavailable = errors.New("annotation ledger unavailable")
	// ErrInvalidInput is shared with the dispatch engine.
	ErrInvalidInput = dispatch.ErrInvalidInput
	// ErrExhausted is shared with the dispatch engine.
	ErrExhausted = dispatch.ErrExhausted
	// ErrBoxSearchUnsupported is returned when the ledger cannot search boxes.
	ErrBoxSearchUnsupported = errors.New("ledger does not support box search")
)

// Options holds the collaborators of a Service. Validation and Truths may
// be nil when no validation corpus is configured.
type Options struct {
	Ledger               storage.Ledger
	Corpus               *corpus.Index
	Validation           *corpus.Index
	Engine               *dispatch.Engine
	Counter              dispatch.SaturationCounter
	Reserver             reservation.Reserver
	Scorer               scoring.Scorer
	Truths               *scoring.GroundTruthStore
	DegradeOnLedgerError bool
	Logger               *slog.Logger
}

// Service implements work distribution, submission and validation scoring.
type Service struct {
	ledger     storage.Ledger
	corpus     *corpus.Index
	validation *corpus.Index
	engine     *dispatch.Engine
	counter    dispatch.SaturationCounter
	reserver   reservation.Reserver
	scorer     scoring.Scorer
	truths     *scoring.GroundTruthStore
	degrade    bool
	logger     *slog.Logger
}

// New validates opts and returns a Service.
func New(opts Options) (*Service, error) {
	if opts.Ledger == nil || opts.Corpus == nil || opts.Engine == nil || opts.Counter == nil {
		return nil, errors.New("service requires a ledger, corpus, engine and saturation counter")
	}
	if opts.Reserver == nil {
		opts.Reserver = reservation.None{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		ledger:     opts.Ledger,
		corpus:     opts.Corpus,
		validation: opts.Validation,
		engine:     opts.Engine,
		counter:    ledgerCounter{opts.Counter},
		reserver:   opts.Reserver,
		scorer:     opts.Scorer,
		truths:     opts.Truths,
		degrade:    opts.DegradeOnLedgerError,
		logger:     opts.Logger,
	}, nil
}

// Corpus returns the production corpus.
func (s *Service) Corpus() *corpus.Index { return s.corpus }

// ValidationCorpus returns the validation corpus, or nil.
func (s *Service) ValidationCorpus() *corpus.Index { return s.validation }

// NextWork returns the clips annotator should work on next.
func (s *Service) NextWork(ctx context.Context, annotator string) (*models.Assignment, error) {
	history, err := s.history(ctx, annotator)
	if err != nil {
		return nil, err
	}

	exclude := make(map[int]bool)
	for attempt := 0; attempt <= s.corpus.NumBlocks(); attempt++ {
		assignment, err := s.engine.Next(ctx, dispatch.Request{
			Annotator: annotator,
			History:   history,
			Clips:     s.corpus.Clips(),
			Exclude:   exclude,
		}, s.counter)
		if err != nil {
			if errors.Is(err, dispatch.ErrExhausted) {
				s.logger.Info("no work left for annotator", "annotator", annotator)
			}
			return nil, err
		}

		if assignment.Resumed {
			s.logAssignment(annotator, assignment)
			return assignment, nil
		}

		held, err := s.reserver.Reserve(ctx, assignment.Block, annotator)
		if err != nil {
			s.logger.Warn("slot reservation failed, serving block unreserved",
				"annotator", annotator, "block", assignment.Block, "error", err)
			held = true
		}
		if held {
			s.logAssignment(annotator, assignment)
			return assignment, nil
		}

		s.logger.Debug("lost block reservation", "annotator", annotator, "block", assignment.Block)
		exclude[assignment.Block] = true
	}
	return nil, dispatch.ErrExhausted
}

// ledgerCounter reports saturation failures as ErrLedgerUnavailable.
type ledgerCounter struct {
	dispatch.SaturationCounter
}

func (c ledgerCounter) Saturation(ctx context.Context, blocks []models.Block) ([]int, error) {
	counts, err := c.SaturationCounter.Saturation(ctx, blocks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	return counts, nil
}

func (s *Service) history(ctx context.Context, annotator string) ([]models.AnnotationRecord, error) {
	history, err := s.ledger.FindByAnnotator(ctx, annotator)
	if err == nil {
		return history, nil
	}
	if s.degrade {
		s.logger.Warn("history lookup failed, treating annotator as new",
			"annotator", annotator, "error", err)
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
}

func (s *Service) logAssignment(annotator string, a *models.Assignment) {
	s.logger.Info("assigned clips",
		"annotator", annotator,
		"block", a.Block,
		"start_index", a.StartIndex,
		"total_clips", a.TotalClips,
		"resumed", a.Resumed)
}

// NextValidation returns one random validation clip.
func (s *Service) NextValidation(context.Context) (*models.Assignment, error) {
	if s.validation == nil {
		return nil, fmt.Errorf("validation corpus: %w", corpus.ErrCorpusEmpty)
	}
	return s.engine.NextValidation(s.validation.Clips())
}

// Submit stores one annotation record for annotator.
func (s *Service) Submit(ctx context.Context, annotator string, rec *models.AnnotationRecord) (string, error) {
	ids, err := s.SubmitBatch(ctx, annotator, []*models.AnnotationRecord{rec})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// SubmitBatch stores several records for annotator. Identity and
// timestamps are assigned here; client-supplied values are overwritten.
func (s *Service) SubmitBatch(ctx context.Context, annotator string, recs []*models.AnnotationRecord) ([]string, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("no annotations submitted: %w", ErrInvalidInput)
	}
	for _, rec := range recs {
		if rec == nil {
			return nil, fmt.Errorf("empty annotation: %w", ErrInvalidInput)
		}
		if rec.GlobalIndex < 1 || rec.GlobalIndex > s.corpus.Len() {
			return nil, fmt.Errorf("globalIndex %d outside corpus of %d clips: %w",
				rec.GlobalIndex, s.corpus.Len(), ErrInvalidInput)
		}
		rec.ID = ""
		rec.AnnotatorID = annotator
		rec.CreatedAt, rec.UpdatedAt = time.Time{}, time.Time{}
	}

	ids, err := s.ledger.InsertMany(ctx, recs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	for i, rec := range recs {
		s.logger.Info("annotation saved",
			"annotation_id", ids[i],
			"annotator", rec.AnnotatorID,
			"global_index", rec.GlobalIndex,
			"groups", rec.NumberOfGroups)
	}
	return ids, nil
}

// ScoreValidation scores a validation submission against the ground truth
// of its clip. Nothing is persisted.
func (s *Service) ScoreValidation(_ context.Context, rec *models.AnnotationRecord) (float64, error) {
	if s.truths == nil {
		return 0, fmt.Errorf("no ground truth directory configured: %w", scoring.ErrGroundTruthNotFound)
	}
	if rec == nil || rec.VideoFolder == "" {
		return 0, fmt.Errorf("videoFolder is required: %w", ErrInvalidInput)
	}
	truth, err := s.truths.Load(rec.VideoFolder)
	if err != nil {
		return 0, err
	}
	score := s.scorer.Score(truth, rec.Boxes())
	s.logger.Info("validation scored",
		"annotator", rec.AnnotatorID,
		"folder", rec.VideoFolder,
		"ground_truth", len(truth),
		"predictions", len(rec.Groups),
		"score", score)
	return score, nil
}

// FramePath resolves a frame of a production or validation clip.
func (s *Service) FramePath(validation bool, clipIndex, frame int) (string, error) {
	ix := s.corpus
	if validation {
		ix = s.validation
	}
	if ix == nil {
		return "", fmt.Errorf("validation corpus: %w", corpus.ErrFrameNotFound)
	}
	return ix.FramePath(clipIndex, frame)
}

// BlockStatus is the global state of one block. Reserved counts
// annotators holding a reservation slot on it.
type BlockStatus struct {
	Block       models.Block
	Saturation  int
	Target      int
	Reserved    int
	FirstFolder string
	LastFolder  string
}

// Open reports whether new annotators may still be assigned the block.
func (b BlockStatus) Open() bool { return b.Saturation < b.Target }

// Progress reports the saturation of every block in the corpus.
func (s *Service) Progress(ctx context.Context, target int) ([]BlockStatus, error) {
	blocks := s.corpus.Blocks()
	counts, err := s.counter.Saturation(ctx, blocks)
	if err != nil {
		return nil, err
	}
	out := make([]BlockStatus, len(blocks))
	for i, b := range blocks {
		_, clips, err := s.corpus.Block(b.Index)
		if err != nil {
			return nil, err
		}
		reserved, err := s.reserver.Holders(ctx, b.Index)
		if err != nil {
			s.logger.Warn("reservation lookup failed", "block", b.Index, "error", err)
		}
		out[i] = BlockStatus{
			Block:       b,
			Saturation:  counts[i],
			Target:      target,
			Reserved:    reserved,
			FirstFolder: clips[0].Folder,
			LastFolder:  clips[len(clips)-1].Folder,
		}
	}
	return out, nil
}

// SimilarBoxes returns up to limit stored boxes of one clip, closest first
// to box. Reviewers use it to find duplicate or disputed detections.
func (s *Service) SimilarBoxes(ctx context.Context, globalIndex int, box models.Box, limit int) ([]models.Box, error) {
	if globalIndex < 1 || globalIndex > s.corpus.Len() {
		return nil, fmt.Errorf("globalIndex %d outside corpus of %d clips: %w",
			globalIndex, s.corpus.Len(), ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive: %w", ErrInvalidInput)
	}
	searcher, ok := s.ledger.(storage.BoxSearcher)
	if !ok {
		return nil, ErrBoxSearchUnsupported
	}
	boxes, err := searcher.BoxesNear(ctx, globalIndex, box, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	return boxes, nil
}

// AnnotatorProgress reports one annotator's progress per touched block.
func (s *Service) AnnotatorProgress(ctx context.Context, annotator string) ([]dispatch.BlockProgress, error) {
	history, err := s.ledger.FindByAnnotator(ctx, annotator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	return dispatch.Summarize(history, s.corpus.ClipsPerBlock(), s.corpus.NumBlocks())
}

// Close releases the ledger and reservation backend.
func (s *Service) Close() error {
	return errors.Join(s.reserver.Close(), s.ledger.Close())
}
