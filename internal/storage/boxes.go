package storage

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/bdougie/annotator/internal/models"
)

// BoxSearcher finds stored boxes close to a query box. Distance is the L2
// norm over (x_min, y_min, x_max, y_max), the same metric Postgres
// evaluates with pgvector's <-> operator.
type BoxSearcher interface {
	BoxesNear(ctx context.Context, globalIndex int, box models.Box, limit int) ([]models.Box, error)
}

func boxDistance(a, b models.Box) float64 {
	return math.Sqrt(
		(a.XMin-b.XMin)*(a.XMin-b.XMin) +
			(a.YMin-b.YMin)*(a.YMin-b.YMin) +
			(a.XMax-b.XMax)*(a.XMax-b.XMax) +
			(a.YMax-b.YMax)*(a.YMax-b.YMax))
}

// nearestBoxes ranks every box of recs by distance to box and keeps the
// closest limit. Boxes at equal distance keep their stored order.
func nearestBoxes(recs []models.AnnotationRecord, box models.Box, limit int) []models.Box {
	type ranked struct {
		box  models.Box
		dist float64
	}
	var all []ranked
	for _, rec := range recs {
		for _, g := range rec.Groups {
			all = append(all, ranked{box: g.BBox, dist: boxDistance(g.BBox, box)})
		}
	}
	slices.SortStableFunc(all, func(a, b ranked) int { return cmp.Compare(a.dist, b.dist) })
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]models.Box, len(all))
	for i, r := range all {
		out[i] = r.box
	}
	return out
}

func checkLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("box search limit must be positive, got %d", limit)
	}
	return nil
}

func (l *FileLedger) BoxesNear(_ context.Context, globalIndex int, box models.Box, limit int) ([]models.Box, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	var recs []models.AnnotationRecord
	for _, rec := range l.records {
		if rec.GlobalIndex == globalIndex {
			recs = append(recs, rec)
		}
	}
	return nearestBoxes(recs, box, limit), nil
}

func (s *SQLiteLedger) BoxesNear(ctx context.Context, globalIndex int, box models.Box, limit int) ([]models.Box, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+annotationColumns+` FROM annotations WHERE global_index = ? ORDER BY created_at, id`,
		globalIndex)
	if err != nil {
		return nil, fmt.Errorf("query annotations: %w", err)
	}
	defer rows.Close()

	var recs []models.AnnotationRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nearestBoxes(recs, box, limit), nil
}

var (
	_ BoxSearcher = (*FileLedger)(nil)
	_ BoxSearcher = (*SQLiteLedger)(nil)
	_ BoxSearcher = (*PostgresLedger)(nil)
)
