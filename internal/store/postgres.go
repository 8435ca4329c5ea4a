package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docsearch/internal/apperr"
)

// PoolConfig bounds the pgx connection pool per the shared-resource policy.
type PoolConfig struct {
	MaxConns        int32
	MaxConnIdleTime time.Duration
	MaxConnLifetime time.Duration
	AcquireTimeout  time.Duration
}

// DefaultPoolConfig matches the operational defaults: 10 connections,
// 300s idle timeout, 1800s max lifetime, 30s acquire timeout.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        10,
		MaxConnIdleTime: 300 * time.Second,
		MaxConnLifetime: 1800 * time.Second,
		AcquireTimeout:  30 * time.Second,
	}
}

// Postgres is the pgvector-backed Store implementation.
type Postgres struct {
	pool *pgxpool.Pool
	dim  int
	pcfg PoolConfig
}

// Open connects to Postgres, applies the pool policy, ensures the pgvector
// extension and schema exist, and pings the pool before returning.
func Open(ctx context.Context, dsn string, dimension int, pcfg PoolConfig) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperr.New(apperr.Configuration, "store.Open", err)
	}
	cfg.MaxConns = pcfg.MaxConns
	cfg.MaxConnIdleTime = pcfg.MaxConnIdleTime
	cfg.MaxConnLifetime = pcfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperr.New(apperr.StoreErr, "store.Open", err)
	}

	pctx, cancel := context.WithTimeout(ctx, pcfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, apperr.New(apperr.StoreErr, "store.Open.ping", err)
	}

	s := &Postgres{pool: pool, dim: dimension, pcfg: pcfg}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) Close() { s.pool.Close() }

func (s *Postgres) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS packages (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			version TEXT,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
			total_docs INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS package_configs (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			version_spec TEXT NOT NULL,
			current_version TEXT,
			features TEXT[] NOT NULL DEFAULT '{}',
			expected_docs INTEGER NOT NULL DEFAULT 0,
			enabled BOOLEAN NOT NULL DEFAULT true,
			last_checked TIMESTAMPTZ,
			last_populated TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE(name, version_spec)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			id SERIAL PRIMARY KEY,
			package_id INTEGER NOT NULL REFERENCES packages(id),
			package_name TEXT NOT NULL,
			doc_path TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			token_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE(package_name, doc_path)
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS embeddings_vector_idx ON embeddings USING ivfflat (embedding vector_cosine_ops)`,
		`CREATE TABLE IF NOT EXISTS ingestion_jobs (
			id SERIAL PRIMARY KEY,
			package_config_id INTEGER NOT NULL REFERENCES package_configs(id),
			status TEXT NOT NULL,
			error_message TEXT,
			docs_populated INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return apperr.New(apperr.StoreErr, "store.ensureSchema", err)
		}
	}
	return nil
}

func (s *Postgres) UpsertPackage(ctx context.Context, name, version string) (int64, error) {
	var id int64
	var versionArg any
	if version != "" {
		versionArg = version
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO packages (name, version, last_updated)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET
			version = COALESCE($2, packages.version),
			last_updated = now()
		RETURNING id
	`, name, versionArg).Scan(&id)
	if err != nil {
		return 0, apperr.New(apperr.StoreErr, "store.UpsertPackage", err)
	}
	return id, nil
}

func (s *Postgres) HasEmbeddings(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM embeddings WHERE package_name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, apperr.New(apperr.StoreErr, "store.HasEmbeddings", err)
	}
	return exists, nil
}

func (s *Postgres) ListPackagesWithEmbeddings(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT package_name FROM embeddings ORDER BY package_name`)
	if err != nil {
		return nil, apperr.New(apperr.StoreErr, "store.ListPackagesWithEmbeddings", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperr.New(apperr.StoreErr, "store.ListPackagesWithEmbeddings.scan", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Postgres) InsertEmbeddingsBatch(ctx context.Context, packageID int64, name string, rows []EmbeddingRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.New(apperr.StoreErr, "store.InsertEmbeddingsBatch.begin", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range rows {
		vecLit := toVectorLiteral(r.Vector)
		_, err := tx.Exec(ctx, `
			INSERT INTO embeddings (package_id, package_name, doc_path, content, embedding, token_count, created_at)
			VALUES ($1, $2, $3, $4, $5::vector, $6, now())
			ON CONFLICT (package_name, doc_path) DO UPDATE SET
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				token_count = EXCLUDED.token_count,
				created_at = now()
		`, packageID, name, r.Path, r.Content, vecLit, r.TokenCount)
		if err != nil {
			return apperr.New(apperr.StoreErr, "store.InsertEmbeddingsBatch.insert", err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE packages SET
			total_docs = (SELECT COUNT(*) FROM embeddings WHERE package_id = $1),
			total_tokens = (SELECT COALESCE(SUM(token_count), 0) FROM embeddings WHERE package_id = $1)
		WHERE id = $1
	`, packageID)
	if err != nil {
		return apperr.New(apperr.StoreErr, "store.InsertEmbeddingsBatch.recompute", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.New(apperr.StoreErr, "store.InsertEmbeddingsBatch.commit", err)
	}
	return nil
}

func (s *Postgres) SearchSimilar(ctx context.Context, name string, queryVector []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		k = 10
	}
	vecLit := toVectorLiteral(queryVector)
	rows, err := s.pool.Query(ctx, `
		SELECT doc_path, content, 1 - (embedding <=> $1::vector) AS similarity
		FROM embeddings
		WHERE package_name = $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`, vecLit, name, k)
	if err != nil {
		return nil, apperr.New(apperr.StoreErr, "store.SearchSimilar", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Content, &r.Similarity); err != nil {
			return nil, apperr.New(apperr.StoreErr, "store.SearchSimilar.scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) CountDocuments(ctx context.Context, name string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM embeddings WHERE package_name = $1`, name).Scan(&n)
	if err != nil {
		return 0, apperr.New(apperr.StoreErr, "store.CountDocuments", err)
	}
	return n, nil
}

func (s *Postgres) DeleteEmbeddings(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM embeddings WHERE package_name = $1`, name)
	if err != nil {
		return apperr.New(apperr.StoreErr, "store.DeleteEmbeddings", err)
	}
	return nil
}

func (s *Postgres) ListConfigs(ctx context.Context, enabledOnly bool) ([]PackageConfig, error) {
	query := `SELECT id, name, version_spec, COALESCE(current_version, ''), features, expected_docs, enabled, last_checked, last_populated, created_at, updated_at FROM package_configs`
	if enabledOnly {
		query += ` WHERE enabled = true`
	}
	query += ` ORDER BY name, version_spec`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, apperr.New(apperr.StoreErr, "store.ListConfigs", err)
	}
	defer rows.Close()
	var out []PackageConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *Postgres) GetConfig(ctx context.Context, name, versionSpec string) (PackageConfig, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, version_spec, COALESCE(current_version, ''), features, expected_docs, enabled, last_checked, last_populated, created_at, updated_at
		FROM package_configs WHERE name = $1 AND version_spec = $2
	`, name, versionSpec)
	cfg, err := scanConfig(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return PackageConfig{}, false, nil
		}
		return PackageConfig{}, false, apperr.New(apperr.StoreErr, "store.GetConfig", err)
	}
	return cfg, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (PackageConfig, error) {
	var cfg PackageConfig
	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.VersionSpec, &cfg.CurrentVersion, &cfg.Features, &cfg.ExpectedDocs, &cfg.Enabled, &cfg.LastChecked, &cfg.LastPopulated, &cfg.CreatedAt, &cfg.UpdatedAt)
	return cfg, err
}

func (s *Postgres) UpsertConfig(ctx context.Context, cfg PackageConfig) (PackageConfig, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO package_configs (name, version_spec, current_version, features, expected_docs, enabled, last_checked, last_populated, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (name, version_spec) DO UPDATE SET
			current_version = COALESCE(NULLIF(EXCLUDED.current_version, ''), package_configs.current_version),
			features = EXCLUDED.features,
			expected_docs = EXCLUDED.expected_docs,
			enabled = EXCLUDED.enabled,
			last_checked = COALESCE(EXCLUDED.last_checked, package_configs.last_checked),
			last_populated = COALESCE(EXCLUDED.last_populated, package_configs.last_populated),
			updated_at = now()
		RETURNING id, name, version_spec, COALESCE(current_version, ''), features, expected_docs, enabled, last_checked, last_populated, created_at, updated_at
	`, cfg.Name, cfg.VersionSpec, cfg.CurrentVersion, cfg.Features, cfg.ExpectedDocs, cfg.Enabled, cfg.LastChecked, cfg.LastPopulated)
	out, err := scanConfig(row)
	if err != nil {
		return PackageConfig{}, apperr.New(apperr.StoreErr, "store.UpsertConfig", err)
	}
	return out, nil
}

func (s *Postgres) DeleteConfig(ctx context.Context, name, versionSpec string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM package_configs WHERE name = $1 AND version_spec = $2`, name, versionSpec)
	if err != nil {
		return false, apperr.New(apperr.StoreErr, "store.DeleteConfig", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) ConfigsNeedingUpdate(ctx context.Context) ([]PackageConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pc.id, pc.name, pc.version_spec, COALESCE(pc.current_version, ''), pc.features, pc.expected_docs, pc.enabled, pc.last_checked, pc.last_populated, pc.created_at, pc.updated_at
		FROM package_configs pc
		LEFT JOIN packages p ON p.name = pc.name AND (pc.current_version IS NULL OR p.version = pc.current_version)
		WHERE pc.enabled = true AND (
			p.id IS NULL
			OR pc.last_populated IS NULL
			OR (pc.version_spec = 'latest' AND pc.last_checked < now() - interval '24 hours')
		)
	`)
	if err != nil {
		return nil, apperr.New(apperr.StoreErr, "store.ConfigsNeedingUpdate", err)
	}
	defer rows.Close()
	var out []PackageConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, apperr.New(apperr.StoreErr, "store.ConfigsNeedingUpdate.scan", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateJob(ctx context.Context, configID int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ingestion_jobs (package_config_id, status, created_at)
		VALUES ($1, $2, now())
		RETURNING id
	`, configID, JobPending).Scan(&id)
	if err != nil {
		return 0, apperr.New(apperr.StoreErr, "store.CreateJob", err)
	}
	return id, nil
}

func (s *Postgres) UpdateJob(ctx context.Context, id int64, update JobUpdate) error {
	set := []string{"status = $2"}
	args := []any{id, update.Status}
	n := 3

	if update.Status == JobRunning {
		set = append(set, "started_at = now()")
	}
	if update.Status == JobCompleted || update.Status == JobFailed {
		set = append(set, "completed_at = now()")
	}
	if update.ErrorMessage != "" {
		set = append(set, fmt.Sprintf("error_message = $%d", n))
		args = append(args, update.ErrorMessage)
		n++
	}
	if update.DocsPopulated != nil {
		set = append(set, fmt.Sprintf("docs_populated = $%d", n))
		args = append(args, *update.DocsPopulated)
		n++
	}

	query := fmt.Sprintf(`UPDATE ingestion_jobs SET %s WHERE id = $1`, strings.Join(set, ", "))
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return apperr.New(apperr.StoreErr, "store.UpdateJob", err)
	}
	return nil
}

func (s *Postgres) AggregateStats(ctx context.Context) ([]Package, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, COALESCE(version, ''), last_updated, total_docs, total_tokens FROM packages ORDER BY name`)
	if err != nil {
		return nil, apperr.New(apperr.StoreErr, "store.AggregateStats", err)
	}
	defer rows.Close()
	var out []Package
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.ID, &p.Name, &p.Version, &p.LastUpdated, &p.TotalDocs, &p.TotalTokens); err != nil {
			return nil, apperr.New(apperr.StoreErr, "store.AggregateStats.scan", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}

var _ Store = (*Postgres)(nil)
