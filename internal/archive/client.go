// Package archive persists finished comparison tasks and batch reports to
// SurrealDB. The store is write-mostly: the orchestration core never reads
// it back, it exists for later inspection of past runs.
package archive

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

func init() {
	// Force HTTP/1.1 for WSS connections to prevent HTTP/2 ALPN negotiation.
	// WebSocket upgrade requires HTTP/1.1 semantics which fail under HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Config holds SurrealDB connection configuration.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Client wraps a SurrealDB connection with auto-reconnect.
type Client struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	cfg    Config
	logger logger.Logger
}

// NewClient creates a new SurrealDB client with auto-reconnecting WebSocket.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	var sdkLogger logger.Logger
	if log != nil {
		sdkLogger = logger.New(log.Handler())
	} else {
		sdkLogger = logger.New(slog.Default().Handler())
	}

	// surrealcbor handles SurrealDB's custom CBOR tags (datetimes, record IDs)
	codec := surrealcbor.New()

	// gorillaws requires ws:// or wss:// URL without /rpc suffix (it adds
	// /rpc internally)
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			ws := gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			})
			return ws, nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	_, err = db.SignIn(ctx, surrealdb.Auth{
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}

	sdkLogger.Info("archive connection established",
		"namespace", cfg.Namespace, "database", cfg.Database)
	return &Client{conn: conn, db: db, cfg: cfg, logger: sdkLogger}, nil
}

// Close closes the SurrealDB connection.
func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("closing archive connection")
	return c.conn.Close(ctx)
}

// SchemaSQL contains the archive schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- COMPARISON TABLE (one row per finished comparison task)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS comparison SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS task_id ON comparison TYPE string;
    DEFINE FIELD IF NOT EXISTS document ON comparison TYPE string;
    DEFINE FIELD IF NOT EXISTS format ON comparison TYPE string;
    DEFINE FIELD IF NOT EXISTS engines ON comparison TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS outcomes ON comparison TYPE array<object> FLEXIBLE;
    -- Note: Must REMOVE then DEFINE to ensure FLEXIBLE is set (IF NOT EXISTS won't update existing field)
    REMOVE FIELD IF EXISTS outcomes.* ON comparison;
    DEFINE FIELD outcomes.* ON comparison TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created ON comparison TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS comparison_task ON comparison FIELDS task_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS comparison_created ON comparison FIELDS created;

    -- ==========================================================================
    -- BATCH_REPORT TABLE (one row per finished batch job)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS batch_report SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS job_id ON batch_report TYPE string;
    DEFINE FIELD IF NOT EXISTS engine ON batch_report TYPE string;
    DEFINE FIELD IF NOT EXISTS format ON batch_report TYPE string;
    DEFINE FIELD IF NOT EXISTS total ON batch_report TYPE int;
    DEFINE FIELD IF NOT EXISTS succeeded ON batch_report TYPE int;
    DEFINE FIELD IF NOT EXISTS failed ON batch_report TYPE int;
    DEFINE FIELD IF NOT EXISTS elapsed_ms ON batch_report TYPE int;
    DEFINE FIELD IF NOT EXISTS records ON batch_report TYPE array<object> FLEXIBLE;
    REMOVE FIELD IF EXISTS records.* ON batch_report;
    DEFINE FIELD records.* ON batch_report TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created ON batch_report TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS batch_report_job ON batch_report FIELDS job_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS batch_report_created ON batch_report FIELDS created;
`

// InitSchema initializes the archive schema.
func (c *Client) InitSchema(ctx context.Context) error {
	c.logger.Info("initializing archive schema")
	_, err := surrealdb.Query[any](ctx, c.db, SchemaSQL, nil)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Query executes a SurrealQL query with parameters.
// Returns the raw query results as []surrealdb.QueryResult[any].
func (c *Client) Query(ctx context.Context, sql string, vars map[string]any) (*[]surrealdb.QueryResult[any], error) {
	return surrealdb.Query[any](ctx, c.db, sql, vars)
}

// WipeData deletes all data from the archive while preserving schema.
// Use for testing only.
func (c *Client) WipeData(ctx context.Context) error {
	c.logger.Warn("wiping all archive data")

	for _, table := range []string{"comparison", "batch_report"} {
		query := fmt.Sprintf("DELETE %s", table)
		if _, err := surrealdb.Query[any](ctx, c.db, query, nil); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
