// Package reservation claims annotator slots on blocks at assignment time.
//
// Saturation is read from the ledger, which only learns about an
// assignment once clips are submitted. Two requests racing on the same
// block can therefore both see it as open. A Reserver closes that window:
// each block holds at most a fixed number of annotator slots and an
// annotator keeps its slot on repeat requests.
package reservation

import (
	"context"
	"fmt"
	"sync"

	"github.com/bdougie/annotator/internal/config"
)

// Reserver claims a slot on a block for an annotator. Reserve reports
// false when every slot is taken by other annotators. Holders counts the
// slots taken on a block.
type Reserver interface {
	Reserve(ctx context.Context, block int, annotator string) (bool, error)
	Holders(ctx context.Context, block int) (int, error)
	Close() error
}

// New returns the reserver selected by cfg.Reservation.Backend. limit is
// the number of slots per block.
func New(cfg *config.Config, limit int) (Reserver, error) {
	switch cfg.Reservation.Backend {
	case "", "none":
		return None{}, nil
	case "local":
		return NewLocal(limit), nil
	case "redis":
		return NewRedis(RedisConfigFrom(cfg.Reservation.Redis), limit)
	default:
		return nil, fmt.Errorf("unknown reservation backend %q", cfg.Reservation.Backend)
	}
}

// None accepts every reservation.
type None struct{}

func (None) Reserve(context.Context, int, string) (bool, error) { return true, nil }
func (None) Holders(context.Context, int) (int, error)          { return 0, nil }
func (None) Close() error                                       { return nil }

// Local keeps slot sets in process memory.
type Local struct {
	mu    sync.Mutex
	limit int
	slots map[int]map[string]struct{}
}

// NewLocal creates an in-process reserver with limit slots per block.
func NewLocal(limit int) *Local {
	return &Local{limit: limit, slots: make(map[int]map[string]struct{})}
}

func (l *Local) Reserve(_ context.Context, block int, annotator string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.slots[block]
	if !ok {
		set = make(map[string]struct{})
		l.slots[block] = set
	}
	if _, held := set[annotator]; held {
		return true, nil
	}
	if len(set) >= l.limit {
		return false, nil
	}
	set[annotator] = struct{}{}
	return true, nil
}

// Holders returns the number of annotators holding a slot on block.
func (l *Local) Holders(_ context.Context, block int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots[block]), nil
}

func (l *Local) Close() error { return nil }
