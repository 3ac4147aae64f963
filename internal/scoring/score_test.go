package scoring

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/bdougie/annotator/internal/models"
)

func box(x1, y1, x2, y2 float64) models.Box {
	return models.Box{XMin: x1, YMin: y1, XMax: x2, YMax: y2}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestIoU(t *testing.T) {
	cases := []struct {
		name string
		a, b models.Box
		want float64
	}{
		{"identical", box(0, 0, 10, 10), box(0, 0, 10, 10), 1},
		{"quarter overlap", box(0, 0, 10, 10), box(5, 5, 15, 15), 25.0 / 175.0},
		{"disjoint", box(0, 0, 10, 10), box(20, 20, 30, 30), 0},
		{"touching edge", box(0, 0, 10, 10), box(10, 0, 20, 10), 0},
		{"contained", box(0, 0, 10, 10), box(0, 0, 5, 10), 0.5},
		{"inverted box", box(10, 10, 0, 0), box(0, 0, 10, 10), 0},
		{"zero area", box(5, 5, 5, 5), box(0, 0, 10, 10), 0},
		{"nan coordinate", box(math.NaN(), 0, 10, 10), box(0, 0, 10, 10), 0},
		{"all nan", box(math.NaN(), math.NaN(), math.NaN(), math.NaN()), box(0, 0, 10, 10), 0},
		{"area overflows", box(0, 0, 1e200, 1e200), box(0, 0, 1e200, 1e200), 0},
		{"infinite extent", box(0, 0, math.Inf(1), 10), box(0, 0, 10, 10), 0},
		{"negative infinite origin", box(math.Inf(-1), 0, 10, 10), box(0, 0, 10, 10), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IoU(tc.a, tc.b); !approx(got, tc.want) {
				t.Fatalf("IoU = %v, want %v", got, tc.want)
			}
			if got := IoU(tc.b, tc.a); !approx(got, tc.want) {
				t.Fatalf("IoU reversed = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScoreEmptySets(t *testing.T) {
	s := NewScorer(0)
	b := []models.Box{box(0, 0, 1, 1)}
	if got := s.Score(nil, nil); got != 1 {
		t.Fatalf("score([], []) = %v, want 1", got)
	}
	if got := s.Score(b, nil); got != 0 {
		t.Fatalf("score([b], []) = %v, want 0", got)
	}
	if got := s.Score(nil, b); got != 0 {
		t.Fatalf("score([], [b]) = %v, want 0", got)
	}
}

func TestScoreScenarios(t *testing.T) {
	s := NewScorer(0.5)
	cases := []struct {
		name        string
		gt, pred    []models.Box
		wantMatches int
		wantScore   float64
	}{
		{
			name:        "one exact match of two",
			gt:          []models.Box{box(0, 0, 10, 10), box(20, 20, 30, 30)},
			pred:        []models.Box{box(0, 0, 10, 10)},
			wantMatches: 1,
			wantScore:   2.0 / 3.0,
		},
		{
			name:        "overlap below threshold",
			gt:          []models.Box{box(0, 0, 10, 10)},
			pred:        []models.Box{box(5, 5, 15, 15)},
			wantMatches: 0,
			wantScore:   0,
		},
		{
			name: "greedy trap",
			// greedy on gt[0] takes pred[0] (IoU 0.67) and leaves gt[1]
			// with a 0.18 pair; optimal pairs gt[0]-pred[1] and gt[1]-pred[0].
			gt:          []models.Box{box(0, 0, 10, 10), box(4, 0, 14, 10)},
			pred:        []models.Box{box(2, 0, 12, 10), box(-3, 0, 7, 10)},
			wantMatches: 2,
			wantScore:   1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Matches(tc.gt, tc.pred); got != tc.wantMatches {
				t.Fatalf("matches = %d, want %d", got, tc.wantMatches)
			}
			if got := s.Score(tc.gt, tc.pred); !approx(got, tc.wantScore) {
				t.Fatalf("score = %v, want %v", got, tc.wantScore)
			}
		})
	}
}

func TestScoreNonFiniteBoxesTerminate(t *testing.T) {
	s := NewScorer(0)
	big := box(0, 0, 1e200, 1e200)
	nan := box(math.NaN(), 0, 10, 10)
	inf := box(0, 0, math.Inf(1), math.Inf(1))
	cases := []struct {
		name     string
		gt, pred []models.Box
		want     float64
	}{
		{"huge vs huge", []models.Box{big}, []models.Box{big}, 0},
		{"nan vs box", []models.Box{nan}, []models.Box{box(0, 0, 10, 10)}, 0},
		{"mixed", []models.Box{big, box(0, 0, 10, 10)}, []models.Box{box(0, 0, 10, 10), nan, inf}, 2.0 / 5.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			done := make(chan float64, 1)
			go func() { done <- s.Score(tc.gt, tc.pred) }()
			select {
			case got := <-done:
				if !approx(got, tc.want) {
					t.Fatalf("score = %v, want %v", got, tc.want)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("score did not return")
			}
		})
	}
}

func TestScoreSelfIsPerfect(t *testing.T) {
	s := NewScorer(0)
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 20; trial++ {
		boxes := randomBoxes(rng, 1+rng.IntN(8))
		if got := s.Score(boxes, boxes); got != 1 {
			t.Fatalf("trial %d: score(GT, GT) = %v", trial, got)
		}
	}
}

func TestScoreSymmetric(t *testing.T) {
	s := NewScorer(0)
	rng := rand.New(rand.NewPCG(3, 5))
	for trial := 0; trial < 200; trial++ {
		a := randomBoxes(rng, rng.IntN(6))
		b := randomBoxes(rng, rng.IntN(6))
		if ab, ba := s.Score(a, b), s.Score(b, a); !approx(ab, ba) {
			t.Fatalf("trial %d: score(A,B)=%v score(B,A)=%v", trial, ab, ba)
		}
	}
}

func TestScoreInRange(t *testing.T) {
	s := NewScorer(0.3)
	rng := rand.New(rand.NewPCG(9, 9))
	for trial := 0; trial < 200; trial++ {
		got := s.Score(randomBoxes(rng, rng.IntN(7)), randomBoxes(rng, rng.IntN(7)))
		if got < 0 || got > 1 {
			t.Fatalf("trial %d: score %v out of [0,1]", trial, got)
		}
	}
}

func randomBoxes(rng *rand.Rand, n int) []models.Box {
	boxes := make([]models.Box, n)
	for i := range boxes {
		x, y := float64(rng.IntN(50)), float64(rng.IntN(50))
		boxes[i] = box(x, y, x+1+float64(rng.IntN(20)), y+1+float64(rng.IntN(20)))
	}
	return boxes
}
