package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/visibility-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and CLI runs without a Postgres instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS domains (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	url      TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	context  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS keywords (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	domain_id INTEGER NOT NULL REFERENCES domains(id),
	text      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS phrases (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	keyword_id INTEGER NOT NULL REFERENCES keywords(id),
	domain_id  INTEGER NOT NULL REFERENCES domains(id),
	text       TEXT NOT NULL,
	selected   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS query_results (
	id          TEXT PRIMARY KEY,
	phrase_id   INTEGER NOT NULL REFERENCES phrases(id),
	domain_id   INTEGER NOT NULL REFERENCES domains(id),
	model       TEXT NOT NULL,
	response    TEXT NOT NULL,
	latency_ms  INTEGER NOT NULL DEFAULT 0,
	cost_usd    REAL NOT NULL DEFAULT 0,
	scores      TEXT NOT NULL,
	competitors TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_query_results_phrase_model ON query_results(phrase_id, model);
CREATE INDEX IF NOT EXISTS idx_query_results_domain ON query_results(domain_id);

CREATE TABLE IF NOT EXISTS visibility_snapshots (
	id         TEXT PRIMARY KEY,
	domain_id  INTEGER NOT NULL REFERENCES domains(id),
	snapshot   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_phrases_domain_selected ON phrases(domain_id, selected);
CREATE INDEX IF NOT EXISTS idx_snapshots_domain_created ON visibility_snapshots(domain_id, created_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetDomain(ctx context.Context, domainID int64) (*model.Domain, error) {
	var d model.Domain
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, location, context FROM domains WHERE id = ?`, domainID,
	).Scan(&d.ID, &d.URL, &d.Location, &d.Context)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get domain")
	}
	return &d, nil
}

func (s *SQLiteStore) FindSelectedPhrases(ctx context.Context, domainID int64) ([]model.Phrase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.keyword_id, p.domain_id, k.text, p.text, p.selected
		 FROM phrases p JOIN keywords k ON k.id = p.keyword_id
		 WHERE p.domain_id = ? AND p.selected = 1 ORDER BY p.id`, domainID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find selected phrases")
	}
	defer rows.Close()

	var phrases []model.Phrase
	for rows.Next() {
		var p model.Phrase
		if err := rows.Scan(&p.ID, &p.KeywordID, &p.DomainID, &p.Keyword, &p.Text, &p.Selected); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan phrase")
		}
		phrases = append(phrases, p)
	}
	return phrases, eris.Wrap(rows.Err(), "sqlite: iterate phrases")
}

func (s *SQLiteStore) FindResult(ctx context.Context, phraseID int64, modelName string) (*model.QueryResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM query_results WHERE phrase_id = ? AND model = ?`,
		phraseID, modelName)
	r, err := scanSQLiteResult(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find result")
	}
	return r, nil
}

func (s *SQLiteStore) FindResultsForPhrases(ctx context.Context, phraseIDs []int64) ([]model.QueryResult, error) {
	if len(phraseIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(phraseIDs)), ",")
	args := make([]any, len(phraseIDs))
	for i, id := range phraseIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM query_results WHERE phrase_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find results for phrases")
	}
	defer rows.Close()

	var out []model.QueryResult
	for rows.Next() {
		r, err := scanSQLiteResult(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate results")
}

func (s *SQLiteStore) CreateResult(ctx context.Context, r *model.QueryResult) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	scores, err := json.Marshal(r.Scores)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal scores")
	}
	competitors, err := json.Marshal(r.Competitors)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal competitors")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO query_results (id, phrase_id, domain_id, model, response, latency_ms, cost_usd, scores, competitors, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (phrase_id, model) DO NOTHING`,
		r.ID, r.PhraseID, r.DomainID, r.Model, r.Response, r.LatencyMS, r.CostUSD,
		string(scores), string(competitors), r.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert result")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListResultsForDomain(ctx context.Context, domainID int64) ([]model.QueryResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM query_results WHERE domain_id = ? ORDER BY created_at`, domainID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results for domain")
	}
	defer rows.Close()

	var out []model.QueryResult
	for rows.Next() {
		r, err := scanSQLiteResult(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate results")
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *model.VisibilitySnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal snapshot")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO visibility_snapshots (id, domain_id, snapshot, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), snap.DomainID, string(data), snap.GeneratedAt,
	)
	return eris.Wrap(err, "sqlite: save snapshot")
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, domainID int64) (*model.VisibilitySnapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM visibility_snapshots WHERE domain_id = ? ORDER BY created_at DESC LIMIT 1`,
		domainID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest snapshot")
	}
	var snap model.VisibilitySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal snapshot")
	}
	return &snap, nil
}

// scanSQLiteResult reads one query_results row via the given scan
// function (works for both *sql.Row and *sql.Rows).
func scanSQLiteResult(scan func(...any) error) (*model.QueryResult, error) {
	var r model.QueryResult
	var scores, competitors sql.NullString
	if err := scan(&r.ID, &r.PhraseID, &r.DomainID, &r.Model, &r.Response,
		&r.LatencyMS, &r.CostUSD, &scores, &competitors, &r.CreatedAt); err != nil {
		return nil, err
	}
	if scores.Valid {
		if err := json.Unmarshal([]byte(scores.String), &r.Scores); err != nil {
			return nil, eris.Wrap(err, "unmarshal scores")
		}
	}
	if competitors.Valid && competitors.String != "" && competitors.String != "null" {
		if err := json.Unmarshal([]byte(competitors.String), &r.Competitors); err != nil {
			return nil, eris.Wrap(err, "unmarshal competitors")
		}
	}
	return &r, nil
}
