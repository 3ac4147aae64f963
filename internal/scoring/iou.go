package scoring

import (
	"math"

	"github.com/bdougie/annotator/internal/models"
)

// IoU returns the intersection-over-union of two boxes. Boxes that do not
// overlap, malformed boxes, and boxes whose area is not finite score zero.
func IoU(a, b models.Box) float64 {
	interW := min(a.XMax, b.XMax) - max(a.XMin, b.XMin)
	interH := min(a.YMax, b.YMax) - max(a.YMin, b.YMin)
	if !(interW > 0 && interH > 0) {
		return 0
	}
	inter := interW * interH
	union := a.Area() + b.Area() - inter
	if math.IsNaN(union) || math.IsInf(union, 0) || math.IsInf(inter, 0) || union <= 0 {
		return 0
	}
	iou := inter / union
	if !(iou >= 0 && iou <= 1) {
		return 0
	}
	return iou
}

// IoUMatrix computes IoU for every (rows[i], cols[j]) pair.
func IoUMatrix(rows, cols []models.Box) [][]float64 {
	m := make([][]float64, len(rows))
	for i, r := range rows {
		m[i] = make([]float64, len(cols))
		for j, c := range cols {
			m[i][j] = IoU(r, c)
		}
	}
	return m
}
