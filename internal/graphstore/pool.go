// Package graphstore wraps a bolt-style property graph driver with
// connection pooling and exposes read/write transaction scopes, entity and
// relationship CRUD, and traversal operations.
// All backend driver errors are translated into the taxonomy
// package's unified error kinds before they leave this package.
package graphstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

// Pool wraps a neo4j driver with the acquisition timeout and query caps the
// hub applies uniformly to every backend op.
type Pool struct {
	driver             neo4j.DriverWithContext
	database           string
	acquisitionTimeout time.Duration
	connectedCap       int
}

// HealthStatus is the result of a Health() probe.
type HealthStatus struct {
	Healthy   bool
	Reason    string
	LatencyMs int64
}

// NewPool dials the configured graph backend and verifies connectivity.
func NewPool(cfg config.GraphConfig) (*Pool, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
			c.MaxTransactionRetryTime = time.Duration(cfg.RetryTimeMs) * time.Millisecond
		})
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.BackendUnavailable, "creating graph driver", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.AcquisitionTimeoutMs)*time.Millisecond)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, taxonomy.Wrap(taxonomy.BackendUnavailable, "connecting to graph backend", err)
	}

	cap := cfg.ConnectedCap
	if cap <= 0 {
		cap = 500
	}

	return &Pool{
		driver:             driver,
		database:           cfg.Database,
		acquisitionTimeout: time.Duration(cfg.AcquisitionTimeoutMs) * time.Millisecond,
		connectedCap:       cap,
	}, nil
}

// Close releases all pooled connections.
func (p *Pool) Close(ctx context.Context) error {
	return p.driver.Close(ctx)
}

// RunRead acquires a read session, starts a read transaction, runs fn, and
// releases the session on every exit path. Acquisition waits up to the
// configured timeout; exhaustion fails with BackendUnavailable.
func (p *Pool) RunRead(ctx context.Context, fn func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	return p.run(ctx, neo4j.AccessModeRead, fn)
}

// RunWrite acquires a write session, starts a write transaction, runs fn,
// commits on success, rolls back on failure, and releases the session on
// every exit path.
func (p *Pool) RunWrite(ctx context.Context, fn func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	return p.run(ctx, neo4j.AccessModeWrite, fn)
}

func (p *Pool) run(ctx context.Context, mode neo4j.AccessMode, fn func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	acqCtx, cancel := context.WithTimeout(ctx, p.acquisitionTimeout)
	defer cancel()

	session := p.driver.NewSession(acqCtx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: p.database,
	})
	defer session.Close(ctx)

	var result any
	var err error
	if mode == neo4j.AccessModeWrite {
		result, err = session.ExecuteWrite(ctx, fn)
	} else {
		result, err = session.ExecuteRead(ctx, fn)
	}
	if err != nil {
		return nil, translateErr(err)
	}
	return result, nil
}

// Health runs "RETURN 1" on a fresh session and reports latency.
func (p *Pool) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	_, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "RETURN 1", nil)
		if err != nil {
			return nil, err
		}
		_, err = res.Single(ctx)
		return nil, err
	})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return HealthStatus{Healthy: false, Reason: err.Error(), LatencyMs: latency}
	}
	return HealthStatus{Healthy: true, LatencyMs: latency}
}

// translateErr maps neo4j driver errors onto the unified taxonomy.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return taxonomy.Wrap(taxonomy.Timeout, "graph operation deadline exceeded", err)
	}

	var neo4jErr *db.Neo4jError
	if errors.As(err, &neo4jErr) {
		if strings.Contains(neo4jErr.Code, "ConstraintValidationFailed") {
			return taxonomy.Wrap(taxonomy.Duplicate, "constraint violation", err)
		}
		return taxonomy.Wrap(taxonomy.Internal, fmt.Sprintf("graph backend error %s", neo4jErr.Code), err)
	}

	return taxonomy.Wrap(taxonomy.BackendUnavailable, "graph backend operation failed", err)
}
