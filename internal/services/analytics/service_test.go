package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatsell/agency_dash/backend/internal/requestctx"
	"github.com/chatsell/agency_dash/backend/internal/store"
)

var testNow = time.Date(2025, 6, 15, 15, 30, 0, 0, time.UTC)

func reportingLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	require.NoError(t, err)
	return loc
}

func newTestService(t *testing.T, fs *fakeStore, rec *fallbackRecorder) *Service {
	t.Helper()
	svc, err := NewService(fs, Options{
		Location:        reportingLocation(t),
		ActiveWindow:    "30d",
		DefaultTopLimit: 5,
		MaxTopLimit:     50,
		FallbackEnabled: true,
		Metrics:         rec,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:           func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return svc
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestFinanceSummaryDecodesAggregate(t *testing.T) {
	fs := &fakeStore{respond: func(collection string, _ mongo.Pipeline) ([]bson.M, error) {
		require.Equal(t, store.CollectionBilling, collection)
		return []bson.M{{"revenue": 150.0, "cost": 50.0, "profit": 100.0, "margin": 100.0 / 150.0}}, nil
	}}
	svc := newTestService(t, fs, &fallbackRecorder{})

	got, err := svc.FinanceSummary(context.Background(), Request{Tenant: "T"})
	require.NoError(t, err)
	require.Equal(t, 150.0, got.Revenue)
	require.Equal(t, 50.0, got.Cost)
	require.Equal(t, 100.0, got.Profit)
	require.InDelta(t, 0.667, got.Margin, 0.001)

	match, _ := stage(fs.calls[0].pipeline, "$match")
	_, hasCreated := lookup(match, store.FieldCreatedAt)
	require.False(t, hasCreated, "no bounds must not constrain created_at")
}

func TestEmptyResultsUseDocumentedDefaults(t *testing.T) {
	fs := &fakeStore{}
	rec := &fallbackRecorder{}
	svc := newTestService(t, fs, rec)
	ctx := context.Background()

	users, err := svc.UsersSummary(ctx, Request{Tenant: "acme"})
	require.NoError(t, err)
	body, _ := json.Marshal(users)
	require.JSONEq(t, `{"total":0,"active":0,"demo":0}`, string(body))

	finance, err := svc.FinanceSummary(ctx, Request{Tenant: "acme"})
	require.NoError(t, err)
	require.Equal(t, FinanceSummary{}, finance)

	team, err := svc.TeamSummary(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, TeamSummary{}, team)

	series, err := svc.UsersTimeseries(ctx, Request{Tenant: "acme"})
	require.NoError(t, err)
	require.NotNil(t, series)
	body, _ = json.Marshal(series)
	require.Equal(t, "[]", string(body))

	require.Empty(t, rec.events)
}

func TestUsersSummaryKeepsMissingAverageOmitted(t *testing.T) {
	fs := &fakeStore{respond: func(string, mongo.Pipeline) ([]bson.M, error) {
		return []bson.M{{"total": int32(3), "active": int32(1), "demo": int32(2), "conversations": int64(10), "avg_activation_ms": nil}}, nil
	}}
	svc := newTestService(t, fs, &fallbackRecorder{})

	got, err := svc.UsersSummary(context.Background(), Request{Tenant: "acme"})
	require.NoError(t, err)
	require.EqualValues(t, 3, got.Total)
	require.NotNil(t, got.Conversations)
	require.EqualValues(t, 10, *got.Conversations)
	require.Nil(t, got.AvgActivationMS)
}

func TestWindowExpandsToReportingDayBounds(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(t, fs, &fallbackRecorder{})
	loc := reportingLocation(t)

	_, err := svc.UsersTimeseries(context.Background(), Request{
		Tenant: "acme",
		From:   date(2025, 3, 1),
		To:     date(2025, 3, 31),
		Bucket: BucketMonth,
	})
	require.NoError(t, err)

	match, _ := stage(fs.calls[0].pipeline, "$match")
	cond, _ := lookup(match, store.FieldCreatedAt)
	gte, _ := lookup(cond, "$gte")
	lte, _ := lookup(cond, "$lte")
	require.True(t, gte.(time.Time).Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, loc)))
	require.True(t, lte.(time.Time).Equal(time.Date(2025, 3, 31, 23, 59, 59, 999999999, loc)))

	group, _ := stage(fs.calls[0].pipeline, "$group")
	id, _ := lookup(group, "_id")
	dts, _ := lookup(id, "$dateToString")
	format, _ := lookup(dts, "format")
	tz, _ := lookup(dts, "timezone")
	require.Equal(t, "%Y-%m", format)
	require.Equal(t, "America/Argentina/Buenos_Aires", tz)
}

func TestActiveThresholdUsesRequestInstant(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(t, fs, &fallbackRecorder{})

	requestNow := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	ctx := requestctx.WithContext(context.Background(), &requestctx.Context{Tenant: "acme", Now: requestNow})
	_, err := svc.ClientDistribution(ctx, "acme")
	require.NoError(t, err)

	match, _ := stage(fs.calls[0].pipeline, "$match")
	cond, _ := lookup(match, store.FieldLimitResetDate)
	gte, _ := lookup(cond, "$gte")
	require.True(t, gte.(time.Time).Equal(requestNow.Add(-30*24*time.Hour)))

	// without a request instant the service clock is used
	_, err = svc.ClientDistribution(context.Background(), "acme")
	require.NoError(t, err)
	match, _ = stage(fs.calls[1].pipeline, "$match")
	cond, _ = lookup(match, store.FieldLimitResetDate)
	gte, _ = lookup(cond, "$gte")
	require.True(t, gte.(time.Time).Equal(testNow.Add(-30*24*time.Hour)))
}

func TestInputFaultsAreRejectedBeforeTheStore(t *testing.T) {
	fs := &fakeStore{}
	rec := &fallbackRecorder{}
	svc := newTestService(t, fs, rec)
	ctx := context.Background()

	_, err := svc.UsersSummary(ctx, Request{Tenant: "  "})
	require.ErrorIs(t, err, ErrTenantRequired)

	_, err = svc.FinanceSummary(ctx, Request{Tenant: "acme", From: date(2025, 4, 2), To: date(2025, 4, 1)})
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = svc.UsersTimeseries(ctx, Request{Tenant: "acme", Bucket: "week"})
	require.ErrorIs(t, err, ErrInvalidBucket)

	_, err = svc.FinanceTimeseries(ctx, Request{Tenant: "acme", Bucket: BucketDay})
	require.ErrorIs(t, err, ErrInvalidBucket)

	_, err = svc.TeamSummary(ctx, "")
	require.ErrorIs(t, err, ErrTenantRequired)

	_, err = svc.ClientDistribution(ctx, "")
	require.ErrorIs(t, err, ErrTenantRequired)

	_, err = svc.TopProfitable(ctx, Request{})
	require.ErrorIs(t, err, ErrTenantRequired)

	require.Empty(t, fs.calls)
	require.Empty(t, rec.events)
}

func TestSameDayRangeIsAccepted(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(t, fs, &fallbackRecorder{})
	_, err := svc.FinanceSummary(context.Background(), Request{Tenant: "acme", From: date(2025, 4, 1), To: date(2025, 4, 1)})
	require.NoError(t, err)
	require.Len(t, fs.calls, 1)
}

func TestTopProfitableEnrichesEveryRow(t *testing.T) {
	fs := &fakeStore{respond: func(collection string, p mongo.Pipeline) ([]bson.M, error) {
		if collection == store.CollectionBilling {
			return []bson.M{
				{"_id": "Acme", "revenue": 150.0, "cost": 50.0, "profit": 100.0},
				{"_id": "Globex", "revenue": 90.0, "cost": 30.0, "profit": 60.0},
				{"_id": "Initech", "revenue": 40.0, "cost": 40.0, "profit": 0.0},
			}, nil
		}
		match, _ := stage(p, "$match")
		company, _ := lookup(match, store.FieldCompanyName)
		switch company {
		case "Acme":
			return []bson.M{{"conversations": int64(1200)}}, nil
		case "Initech":
			return []bson.M{{"conversations": int32(7)}}, nil
		default:
			return nil, nil
		}
	}}
	svc := newTestService(t, fs, &fallbackRecorder{})

	rows, err := svc.TopProfitable(context.Background(), Request{Tenant: "acme-tenant", Limit: 3})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"Acme", "Globex", "Initech"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
	require.EqualValues(t, 1200, rows[0].Conversations)
	require.EqualValues(t, 0, rows[1].Conversations, "company without users must report zero")
	require.EqualValues(t, 7, rows[2].Conversations)
	for i := 1; i < len(rows); i++ {
		require.LessOrEqual(t, rows[i].Profit, rows[i-1].Profit)
	}

	lookups := fs.callsTo(store.CollectionUsers)
	require.Len(t, lookups, 3)
	for _, call := range lookups {
		match, _ := stage(call.pipeline, "$match")
		tenant, _ := lookup(match, store.FieldTenant)
		require.Equal(t, "acme-tenant", tenant)
	}

	body, _ := json.Marshal(rows[1])
	require.Contains(t, string(body), `"conversations":0`)
}

func TestTopProfitableLimit(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(t, fs, &fallbackRecorder{})
	ctx := context.Background()

	for _, tc := range []struct {
		requested int
		want      int64
	}{
		{0, 5},
		{-3, 5},
		{2, 2},
		{500, 50},
	} {
		_, err := svc.TopProfitable(ctx, Request{Tenant: "acme", Limit: tc.requested})
		require.NoError(t, err)
		calls := fs.callsTo(store.CollectionBilling)
		limit, _ := stage(calls[len(calls)-1].pipeline, "$limit")
		require.Equal(t, tc.want, limit, "requested %d", tc.requested)
	}
}

func TestStoreUnreachableServesFallbackForEveryOperation(t *testing.T) {
	unreachable := fmt.Errorf("%w: circuit breaker is open", store.ErrUnavailable)
	fs := &fakeStore{respond: func(string, mongo.Pipeline) ([]bson.M, error) { return nil, unreachable }}
	rec := &fallbackRecorder{}
	svc := newTestService(t, fs, rec)
	ctx := context.Background()
	req := Request{Tenant: "acme"}
	loc := reportingLocation(t)

	users, err := svc.UsersSummary(ctx, req)
	require.NoError(t, err)
	require.Equal(t, fallbackUsersSummary(), users)
	require.EqualValues(t, 259200000, *users.AvgActivationMS)

	series, err := svc.UsersTimeseries(ctx, req)
	require.NoError(t, err)
	require.Equal(t, fallbackUsersTimeseries(testNow, loc, BucketDay), series)

	finance, err := svc.FinanceSummary(ctx, req)
	require.NoError(t, err)
	require.Equal(t, FinanceSummary{Revenue: 12350, Cost: 3705, Profit: 8645, Margin: 0.70}, finance)

	financeSeries, err := svc.FinanceTimeseries(ctx, req)
	require.NoError(t, err)
	require.Equal(t, fallbackFinanceTimeseries(testNow, loc), financeSeries)

	top, err := svc.TopProfitable(ctx, req)
	require.NoError(t, err)
	require.Len(t, top, 5)
	require.Equal(t, "Alpha Corp", top[0].ID)

	dist, err := svc.ClientDistribution(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, fallbackClientDistribution(), dist)

	team, err := svc.TeamSummary(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, TeamSummary{TotalConfigurators: 5, AssignableUsers: 15}, team)

	brands, err := svc.BrandsRanking(ctx)
	require.NoError(t, err)
	require.Len(t, brands, 6)
	require.Equal(t, "Agency Alpha", brands[0].ID)

	require.Len(t, rec.events, 8)
	ops := map[string]bool{}
	for _, ev := range rec.events {
		require.Equal(t, "unavailable", ev.reason)
		ops[ev.operation] = true
	}
	require.Len(t, ops, 8)
}

func TestEnrichmentFailureFallsBack(t *testing.T) {
	fs := &fakeStore{respond: func(collection string, _ mongo.Pipeline) ([]bson.M, error) {
		if collection == store.CollectionBilling {
			return []bson.M{{"_id": "Acme", "revenue": 1.0, "cost": 0.0, "profit": 1.0}}, nil
		}
		return nil, context.DeadlineExceeded
	}}
	rec := &fallbackRecorder{}
	svc := newTestService(t, fs, rec)

	rows, err := svc.TopProfitable(context.Background(), Request{Tenant: "acme", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, fallbackTopProfitable(2), rows)
	require.Equal(t, []recordedFallback{{OpTopProfitable, "timeout"}}, rec.events)
}

func TestDecodeFailureFallsBack(t *testing.T) {
	fs := &fakeStore{respond: func(string, mongo.Pipeline) ([]bson.M, error) {
		return nil, fmt.Errorf("%w: registered_users: %w", store.ErrDecode, errors.New("cannot decode string into an integer type"))
	}}
	rec := &fallbackRecorder{}
	svc := newTestService(t, fs, rec)

	got, err := svc.BrandsRanking(context.Background())
	require.NoError(t, err)
	require.Equal(t, fallbackBrandsRanking(), got)
	require.Equal(t, "decode", rec.events[0].reason)
}

func TestFallbackDisabledSurfacesStoreFailure(t *testing.T) {
	fs := &fakeStore{respond: func(string, mongo.Pipeline) ([]bson.M, error) { return nil, store.ErrUnavailable }}
	rec := &fallbackRecorder{}
	svc, err := NewService(fs, Options{Clock: func() time.Time { return testNow }, Metrics: rec})
	require.NoError(t, err)

	_, err = svc.TeamSummary(context.Background(), "acme")
	require.ErrorIs(t, err, ErrStoreFailure)
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.Empty(t, rec.events)
}

func TestNewServiceValidatesOptions(t *testing.T) {
	_, err := NewService(nil, Options{})
	require.Error(t, err)

	_, err = NewService(&fakeStore{}, Options{ActiveWindow: "thirty"})
	require.Error(t, err)

	svc, err := NewService(&fakeStore{}, Options{})
	require.NoError(t, err)
	require.Equal(t, time.UTC, svc.Location())
}
