package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chatsell/agency_dash/backend/internal/config"
	"github.com/chatsell/agency_dash/backend/internal/requestctx"
	"github.com/chatsell/agency_dash/backend/internal/store"
	"github.com/chatsell/agency_dash/backend/internal/timeutil"
)

// FallbackRecorder counts responses served from sample data.
type FallbackRecorder interface {
	RecordFallback(operation, reason string)
}

// Options tune a Service. Zero values fall back to the configuration defaults.
type Options struct {
	Location        *time.Location
	ActiveWindow    string
	DefaultTopLimit int
	MaxTopLimit     int
	FallbackEnabled bool
	Metrics         FallbackRecorder
	Logger          *slog.Logger
	Clock           func() time.Time
}

// OptionsFromConfig maps the analytics and reporting sections onto Options.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	loc, err := time.LoadLocation(cfg.Reporting.Timezone)
	if err != nil {
		return Options{}, fmt.Errorf("load reporting timezone: %w", err)
	}
	return Options{
		Location:        loc,
		ActiveWindow:    cfg.Analytics.ActiveWindow,
		DefaultTopLimit: cfg.Analytics.DefaultTopLimit,
		MaxTopLimit:     cfg.Analytics.MaxTopLimit,
		FallbackEnabled: cfg.Analytics.FallbackEnabled,
	}, nil
}

// Service computes tenant analytics on read. Store failures are replaced by sample
// payloads; only invalid input is returned as an error.
type Service struct {
	store           store.Aggregator
	loc             *time.Location
	activeWindow    string
	defaultTopLimit int
	maxTopLimit     int
	fallback        bool
	metrics         FallbackRecorder
	logger          *slog.Logger
	now             func() time.Time
	tracer          trace.Tracer
}

func NewService(agg store.Aggregator, opts Options) (*Service, error) {
	if agg == nil {
		return nil, errors.New("analytics: aggregator is required")
	}
	s := &Service{
		store:           agg,
		loc:             timeutil.EnsureLocation(opts.Location),
		activeWindow:    opts.ActiveWindow,
		defaultTopLimit: opts.DefaultTopLimit,
		maxTopLimit:     opts.MaxTopLimit,
		fallback:        opts.FallbackEnabled,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		now:             opts.Clock,
		tracer:          otel.Tracer("github.com/chatsell/agency_dash/backend/internal/services/analytics"),
	}
	if s.activeWindow == "" {
		s.activeWindow = "30d"
	}
	if err := timeutil.ValidatePeriod(s.activeWindow); err != nil {
		return nil, fmt.Errorf("analytics: active window %q: %w", s.activeWindow, err)
	}
	if s.defaultTopLimit <= 0 {
		s.defaultTopLimit = 5
	}
	if s.maxTopLimit <= 0 {
		s.maxTopLimit = 50
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Location returns the reporting timezone used for day bounds and buckets.
func (s *Service) Location() *time.Location { return s.loc }

// activeThreshold is the earliest reset date that still counts as active for a
// request evaluated at now.
func (s *Service) activeThreshold(ctx context.Context) time.Time {
	now := requestctx.NowFrom(ctx, s.now)
	window, err := timeutil.NewWindow(s.activeWindow, now, s.loc)
	if err != nil {
		// validated in NewService
		return now.AddDate(0, 0, -30)
	}
	return window.Start()
}

func (s *Service) window(req Request) (timeutil.Range, error) {
	if strings.TrimSpace(req.Tenant) == "" {
		return timeutil.Range{}, ErrTenantRequired
	}
	return timeutil.NormalizeDates(req.From, req.To, s.loc)
}

func (s *Service) topLimit(requested int) int {
	switch {
	case requested <= 0:
		return s.defaultTopLimit
	case requested > s.maxTopLimit:
		return s.maxTopLimit
	default:
		return requested
	}
}

// UsersSummary totals, activity and activation latency of a tenant's users.
func (s *Service) UsersSummary(ctx context.Context, req Request) (UsersSummary, error) {
	window, err := s.window(req)
	if err != nil {
		return UsersSummary{}, err
	}
	threshold := s.activeThreshold(ctx)
	return execute(ctx, s, OpUsersSummary, req.Tenant, func(ctx context.Context) (UsersSummary, error) {
		var rows []UsersSummary
		pipeline := UsersSummaryPipeline(TenantFilter(req.Tenant, window, false), threshold)
		if err := s.store.Aggregate(ctx, store.CollectionUsers, pipeline.Compile(), &rows); err != nil {
			return UsersSummary{}, err
		}
		if len(rows) == 0 {
			return UsersSummary{}, nil
		}
		return rows[0], nil
	}, fallbackUsersSummary)
}

// UsersTimeseries counts registrations per day or month.
func (s *Service) UsersTimeseries(ctx context.Context, req Request) ([]TimeseriesPoint, error) {
	window, err := s.window(req)
	if err != nil {
		return nil, err
	}
	bucket, err := ParseBucket(string(req.Bucket), BucketDay)
	if err != nil {
		return nil, err
	}
	now := requestctx.NowFrom(ctx, s.now)
	return execute(ctx, s, OpUsersTimeseries, req.Tenant, func(ctx context.Context) ([]TimeseriesPoint, error) {
		rows := make([]TimeseriesPoint, 0)
		pipeline := UsersTimeseriesPipeline(TenantFilter(req.Tenant, window, false), bucket, s.loc.String())
		if err := s.store.Aggregate(ctx, store.CollectionUsers, pipeline.Compile(), &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}, func() []TimeseriesPoint { return fallbackUsersTimeseries(now, s.loc, bucket) })
}

// FinanceSummary totals active billing with derived profit and margin.
func (s *Service) FinanceSummary(ctx context.Context, req Request) (FinanceSummary, error) {
	window, err := s.window(req)
	if err != nil {
		return FinanceSummary{}, err
	}
	return execute(ctx, s, OpFinanceSummary, req.Tenant, func(ctx context.Context) (FinanceSummary, error) {
		var rows []FinanceSummary
		pipeline := FinanceSummaryPipeline(TenantFilter(req.Tenant, window, true))
		if err := s.store.Aggregate(ctx, store.CollectionBilling, pipeline.Compile(), &rows); err != nil {
			return FinanceSummary{}, err
		}
		if len(rows) == 0 {
			return FinanceSummary{}, nil
		}
		return rows[0], nil
	}, fallbackFinanceSummary)
}

// FinanceTimeseries buckets active billing by month. Only the month bucket is accepted.
func (s *Service) FinanceTimeseries(ctx context.Context, req Request) ([]FinancePoint, error) {
	window, err := s.window(req)
	if err != nil {
		return nil, err
	}
	if bucket, err := ParseBucket(string(req.Bucket), BucketMonth); err != nil || bucket != BucketMonth {
		return nil, ErrInvalidBucket
	}
	now := requestctx.NowFrom(ctx, s.now)
	return execute(ctx, s, OpFinanceTimeseries, req.Tenant, func(ctx context.Context) ([]FinancePoint, error) {
		rows := make([]FinancePoint, 0)
		pipeline := FinanceTimeseriesPipeline(TenantFilter(req.Tenant, window, true), s.loc.String())
		if err := s.store.Aggregate(ctx, store.CollectionBilling, pipeline.Compile(), &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}, func() []FinancePoint { return fallbackFinanceTimeseries(now, s.loc) })
}

// TopProfitable ranks client companies by profit and attaches their conversation volume.
func (s *Service) TopProfitable(ctx context.Context, req Request) ([]CompanyProfit, error) {
	window, err := s.window(req)
	if err != nil {
		return nil, err
	}
	limit := s.topLimit(req.Limit)
	return execute(ctx, s, OpTopProfitable, req.Tenant, func(ctx context.Context) ([]CompanyProfit, error) {
		rows := make([]CompanyProfit, 0, limit)
		pipeline := TopProfitPipeline(TenantFilter(req.Tenant, window, true), limit)
		if err := s.store.Aggregate(ctx, store.CollectionBilling, pipeline.Compile(), &rows); err != nil {
			return nil, err
		}
		if len(rows) > limit {
			rows = rows[:limit]
		}
		if err := s.enrichConversations(ctx, req.Tenant, rows); err != nil {
			return nil, err
		}
		return rows, nil
	}, func() []CompanyProfit { return fallbackTopProfitable(limit) })
}

// ClientDistribution counts currently active users per plan size. Date bounds are ignored.
func (s *Service) ClientDistribution(ctx context.Context, tenant string) ([]PlanBucket, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrTenantRequired
	}
	threshold := s.activeThreshold(ctx)
	return execute(ctx, s, OpClientDistribution, tenant, func(ctx context.Context) ([]PlanBucket, error) {
		rows := make([]PlanBucket, 0, 4)
		if err := s.store.Aggregate(ctx, store.CollectionUsers, ClientDistributionPipeline(tenant, threshold).Compile(), &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}, fallbackClientDistribution)
}

// TeamSummary counts a tenant's configurators and their assignable users.
func (s *Service) TeamSummary(ctx context.Context, tenant string) (TeamSummary, error) {
	if strings.TrimSpace(tenant) == "" {
		return TeamSummary{}, ErrTenantRequired
	}
	return execute(ctx, s, OpTeamSummary, tenant, func(ctx context.Context) (TeamSummary, error) {
		var rows []TeamSummary
		if err := s.store.Aggregate(ctx, store.CollectionConfigurators, TeamSummaryPipeline(tenant).Compile(), &rows); err != nil {
			return TeamSummary{}, err
		}
		if len(rows) == 0 {
			return TeamSummary{}, nil
		}
		return rows[0], nil
	}, fallbackTeamSummary)
}

// BrandsRanking ranks all tenants by user count.
func (s *Service) BrandsRanking(ctx context.Context) ([]BrandRank, error) {
	threshold := s.activeThreshold(ctx)
	return execute(ctx, s, OpBrandsRanking, "", func(ctx context.Context) ([]BrandRank, error) {
		rows := make([]BrandRank, 0)
		if err := s.store.Aggregate(ctx, store.CollectionUsers, BrandsRankingPipeline(threshold).Compile(), &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}, fallbackBrandsRanking)
}

// execute runs one store-backed computation. Any error from run is a store or data
// fault and is replaced by fallback(); input validation happens before this point.
func execute[T any](ctx context.Context, s *Service, op, tenant string, run func(context.Context) (T, error), fallback func() T) (T, error) {
	ctx, span := s.tracer.Start(ctx, "analytics."+op, trace.WithAttributes(
		attribute.String("analytics.operation", op),
		attribute.String("analytics.tenant", tenant),
	))
	defer span.End()

	out, err := run(ctx)
	if err == nil {
		return out, nil
	}

	reason := store.Classify(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)

	if !s.fallback {
		s.logger.Error("analytics query failed",
			slog.String("operation", op),
			slog.String("tenant", tenant),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		var zero T
		return zero, fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
	}

	s.logger.Warn("analytics fallback served",
		slog.String("operation", op),
		slog.String("tenant", tenant),
		slog.String("reason", reason),
		slog.String("error", err.Error()))
	if s.metrics != nil {
		s.metrics.RecordFallback(op, reason)
	}
	span.SetAttributes(attribute.Bool("analytics.fallback", true))
	return fallback(), nil
}
