package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/db"
	"github.com/sells-group/visibility-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot path of the analysis loop.
var preparedStatements = map[string]string{
	"find_existing_models": `SELECT model FROM query_results WHERE phrase_id = $1`,
	"find_result":          `SELECT id, phrase_id, domain_id, model, response, latency_ms, cost_usd, scores, competitors, created_at FROM query_results WHERE phrase_id = $1 AND model = $2`,
	"insert_result":        `INSERT INTO query_results (id, phrase_id, domain_id, model, response, latency_ms, cost_usd, scores, competitors, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT (phrase_id, model) DO NOTHING`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS domains (
	id       BIGSERIAL PRIMARY KEY,
	url      TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	context  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS keywords (
	id        BIGSERIAL PRIMARY KEY,
	domain_id BIGINT NOT NULL REFERENCES domains(id),
	text      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS phrases (
	id         BIGSERIAL PRIMARY KEY,
	keyword_id BIGINT NOT NULL REFERENCES keywords(id),
	domain_id  BIGINT NOT NULL REFERENCES domains(id),
	text       TEXT NOT NULL,
	selected   BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS query_results (
	id          TEXT PRIMARY KEY,
	phrase_id   BIGINT NOT NULL REFERENCES phrases(id),
	domain_id   BIGINT NOT NULL REFERENCES domains(id),
	model       TEXT NOT NULL,
	response    TEXT NOT NULL,
	latency_ms  BIGINT NOT NULL DEFAULT 0,
	cost_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
	scores      JSONB NOT NULL,
	competitors JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_query_results_phrase_model ON query_results(phrase_id, model);
CREATE INDEX IF NOT EXISTS idx_query_results_domain ON query_results(domain_id);

CREATE TABLE IF NOT EXISTS visibility_snapshots (
	id         TEXT PRIMARY KEY,
	domain_id  BIGINT NOT NULL REFERENCES domains(id),
	snapshot   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_phrases_domain_selected ON phrases(domain_id, selected);
CREATE INDEX IF NOT EXISTS idx_snapshots_domain_created ON visibility_snapshots(domain_id, created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) GetDomain(ctx context.Context, domainID int64) (*model.Domain, error) {
	var d model.Domain
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, location, context FROM domains WHERE id = $1`, domainID,
	).Scan(&d.ID, &d.URL, &d.Location, &d.Context)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get domain")
	}
	return &d, nil
}

func (s *PostgresStore) FindSelectedPhrases(ctx context.Context, domainID int64) ([]model.Phrase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.keyword_id, p.domain_id, k.text, p.text, p.selected
		 FROM phrases p JOIN keywords k ON k.id = p.keyword_id
		 WHERE p.domain_id = $1 AND p.selected ORDER BY p.id`, domainID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find selected phrases")
	}
	defer rows.Close()

	var phrases []model.Phrase
	for rows.Next() {
		var p model.Phrase
		if err := rows.Scan(&p.ID, &p.KeywordID, &p.DomainID, &p.Keyword, &p.Text, &p.Selected); err != nil {
			return nil, eris.Wrap(err, "postgres: scan phrase")
		}
		phrases = append(phrases, p)
	}
	return phrases, eris.Wrap(rows.Err(), "postgres: iterate phrases")
}

const resultColumns = `id, phrase_id, domain_id, model, response, latency_ms, cost_usd, scores, competitors, created_at`

func (s *PostgresStore) FindResult(ctx context.Context, phraseID int64, modelName string) (*model.QueryResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM query_results WHERE phrase_id = $1 AND model = $2`,
		phraseID, modelName)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find result")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, eris.Wrap(rows.Err(), "postgres: find result")
	}
	r, err := scanResult(rows)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) FindResultsForPhrases(ctx context.Context, phraseIDs []int64) ([]model.QueryResult, error) {
	if len(phraseIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM query_results WHERE phrase_id = ANY($1)`, phraseIDs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find results for phrases")
	}
	defer rows.Close()
	return collectResults(rows)
}

func (s *PostgresStore) CreateResult(ctx context.Context, r *model.QueryResult) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	scores, err := json.Marshal(r.Scores)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal scores")
	}
	competitors, err := json.Marshal(r.Competitors)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal competitors")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO query_results (id, phrase_id, domain_id, model, response, latency_ms, cost_usd, scores, competitors, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (phrase_id, model) DO NOTHING`,
		r.ID, r.PhraseID, r.DomainID, r.Model, r.Response, r.LatencyMS, r.CostUSD, scores, competitors, r.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert result")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListResultsForDomain(ctx context.Context, domainID int64) ([]model.QueryResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM query_results WHERE domain_id = $1 ORDER BY created_at`, domainID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results for domain")
	}
	defer rows.Close()
	return collectResults(rows)
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.VisibilitySnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal snapshot")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO visibility_snapshots (id, domain_id, snapshot, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), snap.DomainID, data, snap.GeneratedAt,
	)
	return eris.Wrap(err, "postgres: save snapshot")
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, domainID int64) (*model.VisibilitySnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT snapshot FROM visibility_snapshots WHERE domain_id = $1 ORDER BY created_at DESC LIMIT 1`, domainID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest snapshot")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, eris.Wrap(rows.Err(), "postgres: latest snapshot")
	}
	var data []byte
	if err := rows.Scan(&data); err != nil {
		return nil, eris.Wrap(err, "postgres: scan snapshot")
	}
	var snap model.VisibilitySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal snapshot")
	}
	return &snap, nil
}

// scanResult reads one query_results row from the current cursor.
func scanResult(rows pgx.Rows) (*model.QueryResult, error) {
	var r model.QueryResult
	var scores, competitors []byte
	if err := rows.Scan(&r.ID, &r.PhraseID, &r.DomainID, &r.Model, &r.Response,
		&r.LatencyMS, &r.CostUSD, &scores, &competitors, &r.CreatedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan result")
	}
	if err := json.Unmarshal(scores, &r.Scores); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal scores")
	}
	if len(competitors) > 0 {
		if err := json.Unmarshal(competitors, &r.Competitors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal competitors")
		}
	}
	return &r, nil
}

func collectResults(rows pgx.Rows) ([]model.QueryResult, error) {
	var out []model.QueryResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate results")
}
