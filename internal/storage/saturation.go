package storage

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bdougie/annotator/internal/models"
)

// SaturationMode selects how a block's saturation is measured.
type SaturationMode string

const (
	// SaturationLastClip counts records on the block's last clip.
	SaturationLastClip SaturationMode = "last_clip"
	// SaturationBlock counts annotators who annotated every clip of the block.
	SaturationBlock SaturationMode = "block"
)

const defaultSaturationConcurrency = 8

// Counter measures block saturation against a ledger.
type Counter struct {
	ledger      Ledger
	mode        SaturationMode
	concurrency int
}

// NewCounter returns a saturation counter. An empty mode selects
// SaturationLastClip.
func NewCounter(ledger Ledger, mode SaturationMode) (*Counter, error) {
	switch mode {
	case "":
		mode = SaturationLastClip
	case SaturationLastClip, SaturationBlock:
	default:
		return nil, fmt.Errorf("unknown saturation mode %q", mode)
	}
	return &Counter{ledger: ledger, mode: mode, concurrency: defaultSaturationConcurrency}, nil
}

// Saturation returns one count per block, in the order given. Lookups run
// concurrently; the first failure cancels the rest.
func (c *Counter) Saturation(ctx context.Context, blocks []models.Block) ([]int, error) {
	counts := make([]int, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, block := range blocks {
		g.Go(func() error {
			n, err := c.count(gctx, block)
			if err != nil {
				return fmt.Errorf("block %d: %w", block.Index, err)
			}
			counts[i] = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (c *Counter) count(ctx context.Context, block models.Block) (int, error) {
	if c.mode == SaturationBlock {
		return c.ledger.CountCompletedAnnotators(ctx, block.FirstGlobal(), block.LastGlobal())
	}
	return c.ledger.CountByGlobalIndex(ctx, block.LastGlobal())
}
