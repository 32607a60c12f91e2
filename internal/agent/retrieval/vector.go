package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Querier is the subset of *pgxpool.Pool used by VectorSearcher.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Document is one knowledge-base chunk.
type Document struct {
	ID       int64
	Filename string
	Source   string
	Content  string
}

// VectorSearcher ranks knowledge-base chunks by L2 distance to the query embedding.
type VectorSearcher struct {
	db       Querier
	embedder Embedder
	table    string
	topK     int
}

func NewVectorSearcher(db Querier, embedder Embedder, table string, topK int) *VectorSearcher {
	if table == "" {
		table = "documents"
	}
	if topK <= 0 {
		topK = 4
	}
	return &VectorSearcher{db: db, embedder: embedder, table: table, topK: topK}
}

// OpenPool connects to Postgres. The caller owns the pool.
func OpenPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect vector store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping vector store: %w", err)
	}
	return pool, nil
}

// QuerySimilar returns the topK nearest chunks.
func (s *VectorSearcher) QuerySimilar(ctx context.Context, embedding []float32) ([]Document, error) {
	q := fmt.Sprintf("SELECT id, filename, source, content FROM %s ORDER BY embedding <-> $1 LIMIT $2",
		pgx.Identifier{s.table}.Sanitize())
	rows, err := s.db.Query(ctx, q, pgvector.NewVector(embedding), s.topK)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.Source, &d.Content); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *VectorSearcher) Search(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrNoResults
	}
	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return "", err
	}
	docs, err := s.QuerySimilar(ctx, emb)
	if err != nil {
		return "", err
	}

	chunks := make([]string, len(docs))
	for i, d := range docs {
		chunks[i] = fmt.Sprintf("Archivo: %s\n%s", d.Filename, d.Content)
	}
	if out := joinChunks(chunks); out != "" {
		return out, nil
	}
	return "", ErrNoResults
}
