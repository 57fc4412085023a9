package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Client = (*PostgresClient)(nil)

// PGPool is the subset of pgxpool.Pool the adapter needs. Satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type PGPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresClient reads and writes documents held in a Postgres table with a
// JSONB fields column. This is the shape the server-side system of record
// uses; the mobile deployments talk to the REST adapter instead.
//
// Schema:
//
//	documents(collection TEXT, parent_collection TEXT, parent_id TEXT,
//	          doc_id TEXT, fields JSONB,
//	          PRIMARY KEY (collection, parent_collection, parent_id, doc_id))
type PostgresClient struct {
	logger *slog.Logger
	pgpool PGPool
}

// NewPostgresClient builds the Postgres-backed document store adapter.
func NewPostgresClient(pgpool PGPool, logger *slog.Logger) *PostgresClient {
	return &PostgresClient{
		logger: logger,
		pgpool: pgpool,
	}
}

func (c *PostgresClient) FetchCollection(ctx context.Context, name string) ([]Document, error) {
	ctx, span := otel.Tracer("RemotePostgresClient").Start(ctx, "FetchCollection", trace.WithAttributes(
		attribute.String("collection", name),
	))
	defer span.End()

	l := c.logger.With(slog.String("method", "FetchCollection"))

	query := `
        SELECT doc_id, fields
        FROM documents
        WHERE collection = $1 AND parent_collection = '' AND parent_id = ''
        ORDER BY doc_id ASC
    `

	rows, err := c.pgpool.Query(ctx, query, name)
	if err != nil {
		l.ErrorContext(ctx, "Failed to query collection",
			slog.Any("error", err), slog.String("collection", name))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to query collection %q: %w", name, err)
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		l.ErrorContext(ctx, "Failed to scan collection rows", slog.Any("error", err))
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan collection %q: %w", name, err)
	}

	l.InfoContext(ctx, "Collection fetched", slog.Int("count", len(docs)))
	span.SetAttributes(attribute.Int("results.count", len(docs)))
	span.SetStatus(codes.Ok, "Collection fetched")
	return docs, nil
}

func (c *PostgresClient) FetchSubcollection(ctx context.Context, parentCollection, parentID, child string) ([]Document, error) {
	ctx, span := otel.Tracer("RemotePostgresClient").Start(ctx, "FetchSubcollection", trace.WithAttributes(
		attribute.String("collection", child),
		attribute.String("parent.id", parentID),
	))
	defer span.End()

	l := c.logger.With(slog.String("method", "FetchSubcollection"))

	query := `
        SELECT doc_id, fields
        FROM documents
        WHERE collection = $1 AND parent_collection = $2 AND parent_id = $3
        ORDER BY doc_id ASC
    `

	rows, err := c.pgpool.Query(ctx, query, child, parentCollection, parentID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to query subcollection",
			slog.Any("error", err),
			slog.String("collection", child),
			slog.String("parent_id", parentID))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to query subcollection %s/%s/%s: %w", parentCollection, parentID, child, err)
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		l.ErrorContext(ctx, "Failed to scan subcollection rows", slog.Any("error", err))
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan subcollection %s/%s/%s: %w", parentCollection, parentID, child, err)
	}

	span.SetAttributes(attribute.Int("results.count", len(docs)))
	span.SetStatus(codes.Ok, "Subcollection fetched")
	return docs, nil
}

func (c *PostgresClient) CreateDocument(ctx context.Context, collection, id string, fields map[string]Value) error {
	return c.insert(ctx, collection, "", "", id, fields)
}

func (c *PostgresClient) CreateSubdocument(ctx context.Context, parentCollection, parentID, child, id string, fields map[string]Value) error {
	return c.insert(ctx, child, parentCollection, parentID, id, fields)
}

func (c *PostgresClient) insert(ctx context.Context, collection, parentCollection, parentID, id string, fields map[string]Value) error {
	ctx, span := otel.Tracer("RemotePostgresClient").Start(ctx, "insert", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("doc.id", id),
	))
	defer span.End()

	payload, err := json.Marshal(toWireFields(fields))
	if err != nil {
		return fmt.Errorf("failed to encode fields for %s/%s: %w", collection, id, err)
	}

	query := `
        INSERT INTO documents (collection, parent_collection, parent_id, doc_id, fields)
        VALUES ($1, $2, $3, $4, $5)
    `

	if _, err := c.pgpool.Exec(ctx, query, collection, parentCollection, parentID, id, payload); err != nil {
		c.logger.ErrorContext(ctx, "Failed to insert document",
			slog.Any("error", err),
			slog.String("collection", collection),
			slog.String("doc_id", id))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database insert failed")
		return fmt.Errorf("failed to insert document %s/%s: %w", collection, id, err)
	}

	span.SetStatus(codes.Ok, "Document inserted")
	return nil
}

func scanDocuments(rows pgx.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}

		fields := map[string]any{}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &fields); err != nil {
				return nil, fmt.Errorf("failed to decode fields for document %q: %w", id, err)
			}
		}

		doc := Document{ID: id, Fields: make(map[string]Value, len(fields))}
		for k, v := range fields {
			doc.Fields[k] = FromAny(v)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return docs, nil
}
