package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bdougie/annotator/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS annotations (
    id TEXT PRIMARY KEY,
    annotator_id TEXT NOT NULL,
    global_index INTEGER NOT NULL,
    video_index INTEGER NOT NULL DEFAULT 0,
    video_folder TEXT NOT NULL DEFAULT '',
    video_watched INTEGER NOT NULL DEFAULT 0,
    total_watch_time_ms INTEGER NOT NULL DEFAULT 0,
    groups_json TEXT NOT NULL,
    video_info_json TEXT,
    client_timestamp TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_annotations_annotator ON annotations(annotator_id);
CREATE INDEX IF NOT EXISTS idx_annotations_global_index ON annotations(global_index);
`

const annotationColumns = `id, annotator_id, global_index, video_index, video_folder, video_watched,
    total_watch_time_ms, groups_json, video_info_json, client_timestamp, created_at, updated_at`

// SQLiteLedger stores records in an embedded SQLite database.
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteLedger{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteLedger) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteLedger) Insert(ctx context.Context, rec *models.AnnotationRecord) (string, error) {
	ids, err := s.InsertMany(ctx, []*models.AnnotationRecord{rec})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *SQLiteLedger) InsertMany(ctx context.Context, recs []*models.AnnotationRecord) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		stamp(rec, now)
		groups, info, err := encodeRecordJSON(rec)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO annotations (`+annotationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID,
			rec.AnnotatorID,
			rec.GlobalIndex,
			rec.VideoIndex,
			rec.VideoFolder,
			rec.VideoWatched,
			rec.TotalWatchTimeMs,
			groups,
			info,
			nullableString(rec.Timestamp),
			rec.CreatedAt.Format(time.RFC3339Nano),
			rec.UpdatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return nil, fmt.Errorf("insert annotation: %w", err)
		}
		ids = append(ids, rec.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return ids, nil
}

func (s *SQLiteLedger) FindByAnnotator(ctx context.Context, annotatorID string) ([]models.AnnotationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+annotationColumns+` FROM annotations WHERE annotator_id = ? ORDER BY created_at, id`,
		annotatorID)
	if err != nil {
		return nil, fmt.Errorf("query annotations: %w", err)
	}
	defer rows.Close()

	var out []models.AnnotationRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteLedger) CountByGlobalIndex(ctx context.Context, globalIndex int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM annotations WHERE global_index = ?`, globalIndex).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count annotations: %w", err)
	}
	return count, nil
}

func (s *SQLiteLedger) CountCompletedAnnotators(ctx context.Context, firstGlobal, lastGlobal int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (
            SELECT annotator_id FROM annotations
            WHERE global_index BETWEEN ? AND ?
            GROUP BY annotator_id
            HAVING COUNT(DISTINCT global_index) = ?
        )`,
		firstGlobal, lastGlobal, lastGlobal-firstGlobal+1).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count completed annotators: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (models.AnnotationRecord, error) {
	var (
		rec       models.AnnotationRecord
		groups    string
		info      sql.NullString
		timestamp sql.NullString
		created   string
		updated   string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.AnnotatorID,
		&rec.GlobalIndex,
		&rec.VideoIndex,
		&rec.VideoFolder,
		&rec.VideoWatched,
		&rec.TotalWatchTimeMs,
		&groups,
		&info,
		&timestamp,
		&created,
		&updated,
	); err != nil {
		return rec, fmt.Errorf("scan annotation: %w", err)
	}
	if err := json.Unmarshal([]byte(groups), &rec.Groups); err != nil {
		return rec, fmt.Errorf("decode groups of %s: %w", rec.ID, err)
	}
	rec.NumberOfGroups = len(rec.Groups)
	if info.Valid && info.String != "" {
		rec.VideoInfo = &models.VideoInfo{}
		if err := json.Unmarshal([]byte(info.String), rec.VideoInfo); err != nil {
			return rec, fmt.Errorf("decode video info of %s: %w", rec.ID, err)
		}
	}
	rec.Timestamp = timestamp.String
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return rec, fmt.Errorf("decode created_at of %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return rec, fmt.Errorf("decode updated_at of %s: %w", rec.ID, err)
	}
	return rec, nil
}

func encodeRecordJSON(rec *models.AnnotationRecord) (string, any, error) {
	groups := rec.Groups
	if groups == nil {
		groups = []models.Group{}
	}
	groupsJSON, err := json.Marshal(groups)
	if err != nil {
		return "", nil, fmt.Errorf("encode groups: %w", err)
	}
	if rec.VideoInfo == nil {
		return string(groupsJSON), nil, nil
	}
	infoJSON, err := json.Marshal(rec.VideoInfo)
	if err != nil {
		return "", nil, fmt.Errorf("encode video info: %w", err)
	}
	return string(groupsJSON), string(infoJSON), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
