// Package store implements C1 (Concept Store) and C2 (Vector Index): the
// Postgres-backed persistence layer for Company, SourceDocument, and
// BusinessConcept rows, with ANN search over the concept embedding column.
// C2 is logical, not a separate process — it is the pgvector/VectorChord
// column and index living on the same tables C1 owns (§2, §4.1).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
)

// ConceptStore is the C1/C2 Postgres adapter. It wraps *sql.DB directly
// rather than hiding it behind a generic interface, following the
// reference codebase's PostgresDB shape — there is exactly one storage
// backend in scope for this module (a relational, vector-capable store),
// so an interface boundary here would have no second implementation to
// serve.
type ConceptStore struct {
	db              *sql.DB
	embeddingDim    int
	ivfflatLists    int
	hnswM           int
	hnswEfConstruct int
	queryTimeout    time.Duration
	breaker         *resilience.Breaker
}

// New opens a connection pool against cfg.DSN and configures pool limits.
// It does not create tables; call Initialize for that. breaker, when
// non-nil, guards SearchSimilar (§5: one breaker per external dependency,
// including "database"); write paths are left unprotected since a failed
// write has no degraded fallback for a breaker to buy time for.
func New(cfg config.DatabaseConfig, breaker *resilience.Breaker) (*ConceptStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 1800
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Duration(lifetime) * time.Second)

	dim := cfg.EmbeddingDim
	if dim <= 0 {
		dim = 2560
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 30
	}

	return &ConceptStore{
		db:              db,
		embeddingDim:    dim,
		ivfflatLists:    orDefault(cfg.IVFFlatLists, 100),
		hnswM:           orDefault(cfg.HNSWM, 16),
		hnswEfConstruct: orDefault(cfg.HNSWEfConstruct, 64),
		queryTimeout:    time.Duration(timeout) * time.Second,
		breaker:         breaker,
	}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// DB exposes the underlying pool for packages (pkg/market, pkg/archival,
// pkg/fusion) that share it per §5's single-shared-pool policy.
func (s *ConceptStore) DB() *sql.DB { return s.db }

// Initialize creates the pgvector extension, tables, and ANN index if they
// do not already exist, then warms the connection pool by issuing
// "SELECT 1" across every connection up to MaxOpenConns (§5).
func (s *ConceptStore) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS companies (
				company_code VARCHAR(32) PRIMARY KEY,
				full_name    TEXT NOT NULL UNIQUE,
				short_name   TEXT NOT NULL,
				exchange     VARCHAR(16) NOT NULL DEFAULT '',
				created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
			)`),
		`CREATE INDEX IF NOT EXISTS idx_companies_short_name ON companies (lower(short_name))`,
		`
			CREATE TABLE IF NOT EXISTS source_documents (
				doc_id          UUID PRIMARY KEY,
				company_code    VARCHAR(32) NOT NULL REFERENCES companies(company_code),
				doc_type        VARCHAR(32) NOT NULL,
				published_date  DATE,
				title           TEXT NOT NULL DEFAULT '',
				file_path       TEXT NOT NULL DEFAULT '',
				file_hash       VARCHAR(128) NOT NULL,
				raw_llm_output  BYTEA NOT NULL,
				model_id        TEXT NOT NULL DEFAULT '',
				prompt_version  TEXT NOT NULL DEFAULT '',
				prompt_tokens   INT NOT NULL DEFAULT 0,
				output_tokens   INT NOT NULL DEFAULT 0,
				wall_clock_ms   BIGINT NOT NULL DEFAULT 0,
				status          VARCHAR(16) NOT NULL DEFAULT 'pending',
				error_text      TEXT NOT NULL DEFAULT '',
				created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_source_documents_company_hash
			ON source_documents (company_code, file_hash)`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS business_concepts (
				concept_id              UUID PRIMARY KEY,
				company_code            VARCHAR(32) NOT NULL REFERENCES companies(company_code),
				concept_name            TEXT NOT NULL,
				concept_category        VARCHAR(32) NOT NULL,
				importance_score        DOUBLE PRECISION NOT NULL DEFAULT 0,
				development_stage       TEXT NOT NULL DEFAULT '',
				details                 JSONB NOT NULL DEFAULT '{}'::jsonb,
				embedding               vector(%d),
				last_updated_from_doc   UUID,
				version                 INT NOT NULL DEFAULT 1,
				is_active               BOOLEAN NOT NULL DEFAULT true,
				created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, s.embeddingDim),
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_business_concepts_active_name
			ON business_concepts (company_code, concept_name) WHERE is_active`,
		`CREATE INDEX IF NOT EXISTS idx_business_concepts_company
			ON business_concepts (company_code) WHERE is_active`,
		`CREATE INDEX IF NOT EXISTS idx_business_concepts_needs_vectorization
			ON business_concepts (company_code) WHERE is_active AND embedding IS NULL`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS concept_relations (
				id                 BIGSERIAL PRIMARY KEY,
				source_concept_id  UUID NOT NULL REFERENCES business_concepts(concept_id),
				target_entity_type TEXT NOT NULL,
				target_entity_name TEXT NOT NULL,
				created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
			)`),
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	if err := s.createVectorIndex(ctx); err != nil {
		return err
	}

	return s.warmPool(ctx)
}

// createVectorIndex builds the ANN index over business_concepts.embedding.
// This realization uses IVFFlat, following the reference codebase's vector
// store; §4.1's "m"/"ef_construction" vocabulary maps to IVFFlat's "lists"
// tuning knob here, since the search_similar contract hides the exact ANN
// algorithm behind cosine-distance semantics. See DESIGN.md.
func (s *ConceptStore) createVectorIndex(ctx context.Context) error {
	stmt := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_business_concepts_embedding
		ON business_concepts USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = %d)`, s.ivfflatLists)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

// warmPool issues "SELECT 1" across up to MaxOpenConns connections so the
// first real request does not pay connection-establishment latency (§5).
func (s *ConceptStore) warmPool(ctx context.Context) error {
	stats := s.db.Stats()
	n := stats.MaxOpenConnections
	if n <= 0 {
		n = 1
	}
	conns := make([]*sql.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for i := 0; i < n; i++ {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to warm connection pool: %w", err)
		}
		conns = append(conns, conn)
		if _, err := conn.ExecContext(ctx, "SELECT 1"); err != nil {
			return fmt.Errorf("failed to warm connection pool: %w", err)
		}
	}
	return nil
}

// Ping verifies the connection pool is reachable, for the readiness probe.
func (s *ConceptStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *ConceptStore) Close() error { return s.db.Close() }

func (s *ConceptStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}
