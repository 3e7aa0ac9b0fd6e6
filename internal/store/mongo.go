package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/chatsell/agency_dash/backend/internal/config"
	"github.com/chatsell/agency_dash/backend/internal/observability"
)

var (
	// ErrUnavailable is returned while the circuit breaker rejects calls.
	ErrUnavailable = errors.New("document store unavailable")
	// ErrDecode wraps failures to decode aggregation output.
	ErrDecode = errors.New("decode aggregation result")
)

// Aggregator runs an aggregation pipeline against a collection and decodes every
// resulting document into results, which must be a pointer to a slice.
type Aggregator interface {
	Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, results any) error
}

// Mongo is the production Aggregator backed by a mongo.Database.
type Mongo struct {
	client  *mongo.Client
	db      *mongo.Database
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics *observability.Provider
	logger  *slog.Logger
}

// NewMongo wraps database with a circuit breaker and a per-query timeout.
func NewMongo(client *mongo.Client, database string, cfg config.MongoConfig, breakerCfg config.BreakerConfig, metrics *observability.Provider, logger *slog.Logger) *Mongo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mongo{
		client:  client,
		db:      client.Database(database),
		breaker: newBreaker(breakerCfg, logger),
		timeout: cfg.QueryTimeout,
		metrics: metrics,
		logger:  logger,
	}
}

func newBreaker(cfg config.BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mongodb-aggregate",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
}

// Database exposes the underlying handle for bootstrap tasks.
func (m *Mongo) Database() *mongo.Database { return m.db }

// Aggregate implements Aggregator.
func (m *Mongo) Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, results any) error {
	start := time.Now()
	err := m.guard(func() error {
		queryCtx := ctx
		if m.timeout > 0 {
			var cancel context.CancelFunc
			queryCtx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}
		cursor, err := m.db.Collection(collection).Aggregate(queryCtx, pipeline)
		if err != nil {
			return fmt.Errorf("aggregate %s: %w", collection, err)
		}
		if err := cursor.All(queryCtx, results); err != nil {
			if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
				return fmt.Errorf("read %s: %w", collection, err)
			}
			return fmt.Errorf("%w: %s: %w", ErrDecode, collection, err)
		}
		return nil
	})
	m.metrics.RecordStoreQuery(collection, Classify(err), time.Since(start))
	return err
}

// guard runs fn under the circuit breaker. Only outages count against the breaker;
// data faults such as undecodable documents or a failing stage are returned to the
// caller while the breaker records a success.
func (m *Mongo) guard(fn func() error) error {
	var dataErr error
	_, err := m.breaker.Execute(func() (interface{}, error) {
		err := fn()
		if err != nil && !isOutage(err) {
			dataErr = err
			return nil, nil
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return err
	}
	return dataErr
}

// isOutage reports whether err means the store could not be reached or did not
// answer in time. Errors the server answered with, and decode failures, are not.
func isOutage(err error) bool {
	switch {
	case err == nil, errors.Is(err, ErrDecode), errors.Is(err, context.Canceled):
		return false
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return true
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return false
	}
	// server selection and pool errors carry no server reply
	return true
}

// Ping verifies the primary is reachable.
func (m *Mongo) Ping(ctx context.Context) error {
	if m == nil || m.client == nil {
		return ErrUnavailable
	}
	return m.client.Ping(ctx, readpref.Primary())
}

// Classify maps a store error onto a short reason label for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case mongo.IsNetworkError(err):
		return "network"
	case errors.Is(err, ErrDecode):
		return "decode"
	default:
		return "query"
	}
}
