package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/annotator/internal/models"
)

// PostgresLedger stores records in PostgreSQL. Every drawn box is also
// kept as a vector(4) row so boxes can be searched by coordinates.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, verifies the connection and ensures the schema.
func OpenPostgres(ctx context.Context, connString string) (*PostgresLedger, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := InitSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresLedger{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresLedger) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// InitSchema creates the tables, indexes and vector extension if missing.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	var exists bool
	err := pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}

	if !exists {
		if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	_, err = pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS annotations (
            id TEXT PRIMARY KEY,
            annotator_id TEXT NOT NULL,
            global_index INTEGER NOT NULL,
            video_index INTEGER NOT NULL DEFAULT 0,
            video_folder TEXT NOT NULL DEFAULT '',
            video_watched BOOLEAN NOT NULL DEFAULT FALSE,
            total_watch_time_ms BIGINT NOT NULL DEFAULT 0,
            groups JSONB NOT NULL,
            video_info JSONB,
            client_timestamp TEXT,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );

        CREATE TABLE IF NOT EXISTS annotation_boxes (
            id SERIAL PRIMARY KEY,
            annotation_id TEXT REFERENCES annotations(id) ON DELETE CASCADE,
            group_id INTEGER NOT NULL,
            box vector(4) NOT NULL
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = pool.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_annotations_annotator ON annotations(annotator_id);
        CREATE INDEX IF NOT EXISTS idx_annotations_global_index ON annotations(global_index);
        CREATE INDEX IF NOT EXISTS idx_annotation_boxes_annotation ON annotation_boxes(annotation_id);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}

func (s *PostgresLedger) Insert(ctx context.Context, rec *models.AnnotationRecord) (string, error) {
	ids, err := s.InsertMany(ctx, []*models.AnnotationRecord{rec})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *PostgresLedger) InsertMany(ctx context.Context, recs []*models.AnnotationRecord) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		stamp(rec, now)
		groups, info, err := encodeRecordJSON(rec)
		if err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO annotations
            (id, annotator_id, global_index, video_index, video_folder, video_watched,
             total_watch_time_ms, groups, video_info, client_timestamp, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.ID, rec.AnnotatorID, rec.GlobalIndex, rec.VideoIndex, rec.VideoFolder, rec.VideoWatched,
			rec.TotalWatchTimeMs, groups, info, nullableString(rec.Timestamp), rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to store annotation: %w", err)
		}

		for _, g := range rec.Groups {
			b := g.BBox
			_, err = tx.Exec(ctx,
				`INSERT INTO annotation_boxes (annotation_id, group_id, box) VALUES ($1, $2, $3)`,
				rec.ID, g.GroupID,
				pgvector.NewVector([]float32{float32(b.XMin), float32(b.YMin), float32(b.XMax), float32(b.YMax)}))
			if err != nil {
				return nil, fmt.Errorf("failed to store box: %w", err)
			}
		}
		ids = append(ids, rec.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return ids, nil
}

func (s *PostgresLedger) FindByAnnotator(ctx context.Context, annotatorID string) ([]models.AnnotationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, annotator_id, global_index, video_index, video_folder, video_watched,
        total_watch_time_ms, groups, video_info, COALESCE(client_timestamp, ''), created_at, updated_at
        FROM annotations
        WHERE annotator_id = $1
        ORDER BY created_at, id`,
		annotatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", err)
	}
	defer rows.Close()

	var out []models.AnnotationRecord
	for rows.Next() {
		var (
			rec    models.AnnotationRecord
			groups []byte
			info   []byte
		)
		if err := rows.Scan(&rec.ID, &rec.AnnotatorID, &rec.GlobalIndex, &rec.VideoIndex,
			&rec.VideoFolder, &rec.VideoWatched, &rec.TotalWatchTimeMs, &groups, &info,
			&rec.Timestamp, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		if err := json.Unmarshal(groups, &rec.Groups); err != nil {
			return nil, fmt.Errorf("decode groups of %s: %w", rec.ID, err)
		}
		rec.NumberOfGroups = len(rec.Groups)
		if len(info) > 0 {
			rec.VideoInfo = &models.VideoInfo{}
			if err := json.Unmarshal(info, rec.VideoInfo); err != nil {
				return nil, fmt.Errorf("decode video info of %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

func (s *PostgresLedger) CountByGlobalIndex(ctx context.Context, globalIndex int) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM annotations WHERE global_index = $1", globalIndex).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count annotations: %w", err)
	}
	return count, nil
}

func (s *PostgresLedger) CountCompletedAnnotators(ctx context.Context, firstGlobal, lastGlobal int) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM (
            SELECT annotator_id FROM annotations
            WHERE global_index BETWEEN $1 AND $2
            GROUP BY annotator_id
            HAVING COUNT(DISTINCT global_index) = $3
        ) completed`,
		firstGlobal, lastGlobal, lastGlobal-firstGlobal+1).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed annotators: %w", err)
	}
	return count, nil
}

// BoxesNear returns the stored boxes of one clip closest to box by L2
// distance over their coordinates.
func (s *PostgresLedger) BoxesNear(ctx context.Context, globalIndex int, box models.Box, limit int) ([]models.Box, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	query := pgvector.NewVector([]float32{float32(box.XMin), float32(box.YMin), float32(box.XMax), float32(box.YMax)})
	rows, err := s.pool.Query(ctx,
		`SELECT b.box
        FROM annotation_boxes b
        JOIN annotations a ON a.id = b.annotation_id
        WHERE a.global_index = $1
        ORDER BY b.box <-> $2, a.created_at, b.id
        LIMIT $3`,
		globalIndex, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search boxes: %w", err)
	}

	boxes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Box, error) {
		var v pgvector.Vector
		if err := row.Scan(&v); err != nil {
			return models.Box{}, err
		}
		c := v.Slice()
		if len(c) != 4 {
			return models.Box{}, fmt.Errorf("stored box has %d coordinates", len(c))
		}
		return models.Box{XMin: float64(c[0]), YMin: float64(c[1]), XMax: float64(c[2]), YMax: float64(c[3])}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan boxes: %w", err)
	}
	return boxes, nil
}
