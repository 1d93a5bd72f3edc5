// Package store is the SQLite persistence layer for feeds, episodes,
// analyses, and run audit records.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"podcast-insights-go/internal/types"
)

type Store struct {
	db   *sql.DB
	path string
}

// Open connects to (or creates) the database and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS feeds (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            url TEXT NOT NULL UNIQUE,
            created_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS episodes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            feed_id INTEGER NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
            title TEXT NOT NULL,
            audio_url TEXT NOT NULL,
            duration_secs INTEGER NOT NULL DEFAULT 0,
            published_at TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            error_message TEXT NOT NULL DEFAULT '',
            processed_at TEXT,
            UNIQUE(feed_id, audio_url)
        )`,
		`CREATE TABLE IF NOT EXISTS analyses (
            episode_id INTEGER PRIMARY KEY REFERENCES episodes(id) ON DELETE CASCADE,
            transcript TEXT NOT NULL,
            output_json TEXT NOT NULL,
            artifact_path TEXT NOT NULL,
            created_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS task_logs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            kind TEXT NOT NULL,
            total INTEGER NOT NULL DEFAULT 0,
            processed INTEGER NOT NULL DEFAULT 0,
            failed INTEGER NOT NULL DEFAULT 0,
            error_detail TEXT NOT NULL DEFAULT '',
            started_at TEXT NOT NULL,
            completed_at TEXT
        )`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_status ON episodes(status)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// UpsertFeed inserts a feed keyed by URL, returning the existing row's id
// when the feed is already known.
func (s *Store) UpsertFeed(ctx context.Context, title, url string) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feeds (title, url, created_at) VALUES (?, ?, ?)
         ON CONFLICT(url) DO UPDATE SET title = excluded.title`,
		title, url, timestamp(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("upsert feed: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM feeds WHERE url = ?`, url).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup feed: %w", err)
	}
	return id, nil
}

func (s *Store) ListFeeds(ctx context.Context) ([]types.Feed, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, url FROM feeds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []types.Feed
	for rows.Next() {
		var f types.Feed
		if err := rows.Scan(&f.ID, &f.Title, &f.URL); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func (s *Store) GetFeed(ctx context.Context, id int64) (types.Feed, error) {
	var f types.Feed
	err := s.db.QueryRowContext(ctx, `SELECT id, title, url FROM feeds WHERE id = ?`, id).
		Scan(&f.ID, &f.Title, &f.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Feed{}, fmt.Errorf("feed %d not found", id)
	}
	if err != nil {
		return types.Feed{}, fmt.Errorf("get feed: %w", err)
	}
	return f, nil
}

// InsertEpisode adds an episode if its audio URL is new for the feed, and
// reports whether a row was created. Refreshers call this repeatedly with
// whatever the feed currently advertises.
func (s *Store) InsertEpisode(ctx context.Context, ep types.Episode) (int64, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO episodes
            (feed_id, title, audio_url, duration_secs, published_at, status)
         VALUES (?, ?, ?, ?, ?, ?)`,
		ep.FeedID, ep.Title, ep.AudioURL, ep.DurationSecs,
		timestamp(ep.PublishedAt), string(types.StatusPending))
	if err != nil {
		return 0, false, fmt.Errorf("insert episode: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var id int64
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM episodes WHERE feed_id = ? AND audio_url = ?`,
			ep.FeedID, ep.AudioURL).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("lookup episode: %w", err)
		}
		return id, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}
	return id, true, nil
}

const episodeColumns = `e.id, e.feed_id, f.title, e.title, e.audio_url,
    e.duration_secs, e.published_at, e.status, e.error_message, e.processed_at`

func scanEpisode(row interface{ Scan(...any) error }) (types.Episode, error) {
	var (
		ep          types.Episode
		published   string
		status      string
		processedAt sql.NullString
	)
	err := row.Scan(&ep.ID, &ep.FeedID, &ep.FeedTitle, &ep.Title, &ep.AudioURL,
		&ep.DurationSecs, &published, &status, &ep.ErrorMessage, &processedAt)
	if err != nil {
		return types.Episode{}, err
	}
	ep.Status = types.ProcessingStatus(status)
	if t, err := time.Parse(time.RFC3339Nano, published); err == nil {
		ep.PublishedAt = t
	}
	if processedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, processedAt.String); err == nil {
			ep.ProcessedAt = &t
		}
	}
	return ep, nil
}

func (s *Store) GetEpisode(ctx context.Context, id int64) (types.Episode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes e JOIN feeds f ON f.id = e.feed_id WHERE e.id = ?`, id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Episode{}, fmt.Errorf("episode %d not found", id)
	}
	if err != nil {
		return types.Episode{}, fmt.Errorf("get episode: %w", err)
	}
	return ep, nil
}

func (s *Store) listEpisodes(ctx context.Context, where string, args ...any) ([]types.Episode, error) {
	q := `SELECT ` + episodeColumns + ` FROM episodes e JOIN feeds f ON f.id = e.feed_id ` +
		where + ` ORDER BY e.published_at DESC, e.id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var eps []types.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		eps = append(eps, ep)
	}
	return eps, rows.Err()
}

func (s *Store) ListPendingEpisodes(ctx context.Context, feedID int64) ([]types.Episode, error) {
	return s.listEpisodes(ctx, `WHERE e.feed_id = ? AND e.status = ?`,
		feedID, string(types.StatusPending))
}

func (s *Store) ListFailedEpisodes(ctx context.Context) ([]types.Episode, error) {
	return s.listEpisodes(ctx, `WHERE e.status = ?`, string(types.StatusFailed))
}

func (s *Store) ListEpisodes(ctx context.Context) ([]types.Episode, error) {
	return s.listEpisodes(ctx, ``)
}

// SetStatus writes the episode state and error message. Terminal states also
// stamp processed_at; returning to pending or processing clears it.
func (s *Store) SetStatus(ctx context.Context, episodeID int64, status types.ProcessingStatus, errMsg string) error {
	var processedAt any
	if status == types.StatusCompleted || status == types.StatusFailed {
		processedAt = timestamp(time.Now())
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE episodes SET status = ?, error_message = ?, processed_at = ? WHERE id = ?`,
		string(status), errMsg, processedAt, episodeID)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("episode %d not found", episodeID)
	}
	return nil
}

func (s *Store) HasAnalysis(ctx context.Context, episodeID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM analyses WHERE episode_id = ?`, episodeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check analysis: %w", err)
	}
	return true, nil
}

func (s *Store) SaveAnalysis(ctx context.Context, episodeID int64, transcript string, out types.AnalysisOutput, artifactPath string) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (episode_id, transcript, output_json, artifact_path, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(episode_id) DO UPDATE SET
            transcript = excluded.transcript,
            output_json = excluded.output_json,
            artifact_path = excluded.artifact_path,
            created_at = excluded.created_at`,
		episodeID, transcript, string(payload), artifactPath, timestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// GetAnalysis returns the stored transcript, structured output, and artifact
// reference for an episode.
func (s *Store) GetAnalysis(ctx context.Context, episodeID int64) (string, types.AnalysisOutput, string, error) {
	var (
		transcript string
		payload    string
		artifact   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT transcript, output_json, artifact_path FROM analyses WHERE episode_id = ?`,
		episodeID).Scan(&transcript, &payload, &artifact)
	if errors.Is(err, sql.ErrNoRows) {
		return "", types.AnalysisOutput{}, "", fmt.Errorf("no analysis for episode %d", episodeID)
	}
	if err != nil {
		return "", types.AnalysisOutput{}, "", fmt.Errorf("get analysis: %w", err)
	}
	var out types.AnalysisOutput
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return "", types.AnalysisOutput{}, "", fmt.Errorf("decode analysis: %w", err)
	}
	return transcript, out, artifact, nil
}

func (s *Store) DeleteAnalysis(ctx context.Context, episodeID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM analyses WHERE episode_id = ?`, episodeID); err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	return nil
}

func (s *Store) CreateTaskLog(ctx context.Context, kind types.TaskKind) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO task_logs (kind, started_at) VALUES (?, ?)`,
		string(kind), timestamp(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("create task log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *Store) FinishTaskLog(ctx context.Context, id int64, total, processed, failed int, errDetail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_logs SET total = ?, processed = ?, failed = ?, error_detail = ?, completed_at = ?
         WHERE id = ?`,
		total, processed, failed, errDetail, timestamp(time.Now()), id)
	if err != nil {
		return fmt.Errorf("finish task log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task log %d not found", id)
	}
	return nil
}

func (s *Store) ListTaskLogs(ctx context.Context) ([]types.TaskLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, total, processed, failed, error_detail, started_at, completed_at
         FROM task_logs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list task logs: %w", err)
	}
	defer rows.Close()

	var logs []types.TaskLog
	for rows.Next() {
		var (
			tl          types.TaskLog
			kind        string
			started     string
			completedAt sql.NullString
		)
		if err := rows.Scan(&tl.ID, &kind, &tl.Total, &tl.Processed, &tl.Failed,
			&tl.ErrorDetail, &started, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task log: %w", err)
		}
		tl.Kind = types.TaskKind(kind)
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			tl.StartedAt = t
		}
		if completedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
				tl.CompletedAt = &t
			}
		}
		logs = append(logs, tl)
	}
	return logs, rows.Err()
}
