// Package scoring compares submitted bounding boxes with ground truth.
//
// Boxes are paired one-to-one by an exact maximum-IoU assignment, pairs at
// or above the IoU threshold count as matches, and the score is the Dice
// coefficient 2*matches/(|ground truth|+|predictions|).
package scoring

import "github.com/bdougie/annotator/internal/models"

// DefaultThreshold is the IoU a pair needs to count as a match.
const DefaultThreshold = 0.5

// tieBreak nudges equal-IoU optima toward the pairing with the most
// above-threshold pairs, so the match count does not depend on which set
// is passed first.
const tieBreak = 1e-9

// Pair is one ground-truth/prediction correspondence.
type Pair struct {
	GroundTruth int
	Prediction  int
	IoU         float64
}

// Scorer scores predictions against ground truth.
type Scorer struct {
	Threshold float64
}

// NewScorer returns a scorer; a non-positive threshold selects the default.
func NewScorer(threshold float64) Scorer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Scorer{Threshold: threshold}
}

// Match returns the optimal one-to-one pairing between the two sets. Boxes
// left over on the larger side are not paired.
//
// Each pair at or above the threshold earns a bonus of 1e-9 on top of its
// IoU, which orders pairings by total IoU first and by above-threshold
// pair count second. The chosen pairing can therefore trail the exact
// maximum total IoU by at most k*1e-9 for k pairs.
func (s Scorer) Match(groundTruth, predictions []models.Box) []Pair {
	if len(groundTruth) == 0 || len(predictions) == 0 {
		return nil
	}
	ious := IoUMatrix(groundTruth, predictions)
	cost := make([][]float64, len(ious))
	for i, row := range ious {
		cost[i] = make([]float64, len(row))
		for j, iou := range row {
			cost[i][j] = -iou
			if iou >= s.threshold() {
				cost[i][j] -= tieBreak
			}
		}
	}

	assignment := Assign(cost)
	pairs := make([]Pair, 0, min(len(groundTruth), len(predictions)))
	for i, j := range assignment {
		if j < 0 {
			continue
		}
		pairs = append(pairs, Pair{GroundTruth: i, Prediction: j, IoU: ious[i][j]})
	}
	return pairs
}

// Matches counts optimally paired boxes whose IoU reaches the threshold.
func (s Scorer) Matches(groundTruth, predictions []models.Box) int {
	matches := 0
	for _, p := range s.Match(groundTruth, predictions) {
		if p.IoU >= s.threshold() {
			matches++
		}
	}
	return matches
}

// Score returns 2*matches/(|groundTruth|+|predictions|). Two empty sets
// score 1: nothing was there and nothing was predicted.
func (s Scorer) Score(groundTruth, predictions []models.Box) float64 {
	return Dice(s.Matches(groundTruth, predictions), len(groundTruth), len(predictions))
}

// Dice turns a match count into 2*matches/(a+b), with Dice(0, 0, 0) = 1.
func Dice(matches, a, b int) float64 {
	if a+b == 0 {
		return 1
	}
	return 2 * float64(matches) / float64(a+b)
}

func (s Scorer) threshold() float64 {
	if s.Threshold <= 0 {
		return DefaultThreshold
	}
	return s.Threshold
}
