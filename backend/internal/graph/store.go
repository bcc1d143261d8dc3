package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"trails/backend/internal/constants"
	"trails/backend/pkg/logger"

	apperrors "trails/backend/pkg/errors"
)

// Row is a single query record keyed by its RETURN aliases.
type Row = map[string]any

// Executor runs Cypher against the graph. Failures are reported through the
// boolean and logged by the implementation; callers never see driver errors.
type Executor interface {
	Read(ctx context.Context, query string, params map[string]any) ([]Row, bool)
	Write(ctx context.Context, query string, params map[string]any) bool
}

// Store is the Executor backed by a Neo4j driver. It keeps one session that
// is opened on first use and reused until a connectivity failure drops it.
// Sessions are not safe for concurrent use, so calls are serialized; use a
// Store per unit of work when queries must run in parallel.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger

	mu      sync.Mutex
	session neo4j.SessionWithContext
}

// NewStore wraps an existing driver.
func NewStore(driver neo4j.DriverWithContext, database string) *Store {
	return &Store{
		driver:   driver,
		database: database,
		logger:   logger.Named("graph.store"),
	}
}

// Connect opens a driver and verifies the server is reachable.
func Connect(ctx context.Context, uri, user, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	return NewStore(driver, database), nil
}

// Read runs a read query and returns every record as a Row.
func (s *Store) Read(ctx context.Context, query string, params map[string]any) ([]Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.sessionLocked(ctx)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectRows(ctx, tx, query, params)
	})
	if err != nil {
		s.failLocked(ctx, "read", query, err)
		return nil, false
	}
	return out.([]Row), true
}

// Write runs a write query and reports whether it committed.
func (s *Store) Write(ctx context.Context, query string, params map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.sessionLocked(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		s.failLocked(ctx, "write", query, err)
		return false
	}
	return true
}

func collectRows(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]Row, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.AsMap())
	}
	return rows, nil
}

func (s *Store) sessionLocked(ctx context.Context) neo4j.SessionWithContext {
	if s.session == nil {
		s.session = s.driver.NewSession(ctx, neo4j.SessionConfig{
			AccessMode:   neo4j.AccessModeWrite,
			DatabaseName: s.database,
		})
	}
	return s.session
}

func (s *Store) failLocked(ctx context.Context, op, query string, err error) {
	if unavailable(err) {
		s.logger.Error("Graph service unavailable",
			zap.String("op", op),
			zap.Error(err),
		)
		// Reopen on the next call.
		_ = s.session.Close(ctx)
		s.session = nil
		return
	}
	s.logger.Error("Graph query failed",
		zap.String("op", op),
		zap.String("query", query),
		zap.Error(err),
	)
}

// unavailable reports whether err means the server could not be reached.
// Managed transactions wrap each attempt's failure in a retry limit.
func unavailable(err error) bool {
	var conn *neo4j.ConnectivityError
	if errors.As(err, &conn) {
		return true
	}
	var limit *neo4j.TransactionExecutionLimit
	if errors.As(err, &limit) {
		for _, cause := range limit.Errors {
			if errors.As(cause, &conn) {
				return true
			}
		}
	}
	return false
}

// Close closes the session, if any, and then the driver.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		if err := s.session.Close(ctx); err != nil {
			s.logger.Warn("Failed to close graph session", zap.Error(err))
		}
		s.session = nil
	}
	return s.driver.Close(ctx)
}

// EnsureSchema creates lookup indexes on the id and text properties of the
// given labels. Failures are logged and counted; the first one is returned.
func EnsureSchema(ctx context.Context, exec Executor, labels ...string) error {
	log := logger.Named("graph.schema")
	if len(labels) == 0 {
		labels = []string{constants.LabelChunk, constants.LabelDocument, constants.LabelSection}
	}

	var firstErr error
	for _, label := range labels {
		if err := ValidateIdentifier("label", label); err != nil {
			return err
		}
		for _, prop := range []string{constants.PropID, constants.PropText} {
			name := fmt.Sprintf("%s_%s", label, prop)
			query := fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)", name, label, prop)
			if !exec.Write(ctx, query, nil) {
				log.Warn("Failed to create index", zap.String("index", name))
				if firstErr == nil {
					firstErr = apperrors.NewGraphQueryFailed(query, nil)
				}
				continue
			}
			log.Info("Index ensured", zap.String("index", name))
		}
	}
	return firstErr
}
