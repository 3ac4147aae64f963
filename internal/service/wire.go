package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/bdougie/annotator/internal/config"
	"github.com/bdougie/annotator/internal/corpus"
	"github.com/bdougie/annotator/internal/dispatch"
	"github.com/bdougie/annotator/internal/reservation"
	"github.com/bdougie/annotator/internal/scoring"
	"github.com/bdougie/annotator/internal/storage"
)

// NewRand returns the random source for cfg. A zero seed seeds from the
// clock.
func NewRand(seed uint64) dispatch.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return dispatch.NewLockedRand(rand.New(rand.NewPCG(seed, seed)))
}

// NewEngine builds a dispatch engine from the distribution settings.
func NewEngine(cfg *config.Config) (*dispatch.Engine, error) {
	return dispatch.New(dispatch.Options{
		ClipsPerBlock:     cfg.Distribution.ClipsPerBlock,
		AnnotatorsPerClip: cfg.Distribution.AnnotatorsPerClip,
		Resume:            dispatch.ResumeStrategy(cfg.Distribution.Resume),
		Rand:              NewRand(cfg.Distribution.Seed),
	})
}

// Layout returns the frame layout of cfg.
func Layout(cfg *config.Config) corpus.Layout {
	return corpus.Layout{FrameExtension: cfg.Corpus.FrameExtension, FramePadding: cfg.Corpus.FramePadding}
}

// Build enumerates the corpora and opens every backend named by cfg.
// A missing validation corpus is logged and leaves validation disabled.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	layout := Layout(cfg)

	production, err := corpus.Enumerate(cfg.Paths.VideosDir, layout, cfg.Distribution.ClipsPerBlock)
	if err != nil {
		return nil, err
	}
	logger.Info("corpus loaded",
		"dir", production.Root(),
		"clips", production.Len(),
		"blocks", production.NumBlocks())

	validation, err := corpus.Enumerate(cfg.Paths.ValidationVideosDir, layout, 1)
	switch {
	case errors.Is(err, corpus.ErrCorpusEmpty):
		logger.Warn("validation corpus unavailable", "dir", cfg.Paths.ValidationVideosDir)
		validation = nil
	case err != nil:
		return nil, err
	default:
		logger.Info("validation corpus loaded", "dir", validation.Root(), "clips", validation.Len())
	}

	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	ledger, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", cfg.Storage.Backend, err)
	}
	logger.Info("ledger opened", "backend", cfg.Storage.Backend)

	counter, err := storage.NewCounter(ledger, storage.SaturationMode(cfg.Distribution.Saturation))
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}

	reserver, err := reservation.New(cfg, cfg.Distribution.AnnotatorsPerClip)
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}

	return New(Options{
		Ledger:               ledger,
		Corpus:               production,
		Validation:           validation,
		Engine:               engine,
		Counter:              counter,
		Reserver:             reserver,
		Scorer:               scoring.NewScorer(cfg.Scoring.IoUThreshold),
		Truths:               scoring.NewGroundTruthStore(cfg.Paths.ValidationGTsDir),
		DegradeOnLedgerError: cfg.Distribution.DegradeOnLedgerError,
		Logger:               logger.With(slog.String("component", "service")),
	})
}
