package analytics

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/chatsell/agency_dash/backend/internal/config"
	"github.com/chatsell/agency_dash/backend/internal/database"
	"github.com/chatsell/agency_dash/backend/internal/store"
)

// mongoTestURI returns MONGO_TEST_URI when set, otherwise it starts a throwaway
// MongoDB container. Tests skip when neither is available.
func mongoTestURI(t *testing.T) string {
	t.Helper()
	if uri := os.Getenv("MONGO_TEST_URI"); uri != "" {
		return uri
	}
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return uri
}

// newIntegrationStore returns a store bound to a throwaway database.
func newIntegrationStore(t *testing.T) *store.Mongo {
	t.Helper()
	uri := mongoTestURI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.MongoConfig{URI: uri, QueryTimeout: 5 * time.Second}
	client, err := database.Connect(ctx, cfg, logger)
	require.NoError(t, err)

	name := "analytics_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	m := store.NewMongo(client, name, cfg, config.BreakerConfig{FailureThreshold: 3}, nil, logger)
	t.Cleanup(func() {
		_ = m.Database().Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return m
}

func insert(t *testing.T, m *store.Mongo, collection string, docs ...any) {
	t.Helper()
	_, err := m.Database().Collection(collection).InsertMany(context.Background(), docs)
	require.NoError(t, err)
}

func newIntegrationService(t *testing.T, m *store.Mongo, now time.Time) *Service {
	t.Helper()
	svc, err := NewService(m, Options{
		Location:        time.UTC,
		FallbackEnabled: false,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:           func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc
}

func TestIntegrationFinanceSummaryAcme(t *testing.T) {
	m := newIntegrationStore(t)
	created := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	insert(t, m, store.CollectionBilling,
		store.BillingRecord{Tenant: "T", CompanyName: "Acme", CreatedAt: created, IsActive: true, ClientPrice: 100, ProviderPrice: 40},
		store.BillingRecord{Tenant: "T", CompanyName: "Acme", CreatedAt: created, IsActive: true, ClientPrice: 50, ProviderPrice: 10},
		store.BillingRecord{Tenant: "T", CompanyName: "Acme", CreatedAt: created, IsActive: false, ClientPrice: 999, ProviderPrice: 1},
		store.BillingRecord{Tenant: "Other", CompanyName: "Acme", CreatedAt: created, IsActive: true, ClientPrice: 500, ProviderPrice: 1},
	)
	svc := newIntegrationService(t, m, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	got, err := svc.FinanceSummary(context.Background(), Request{Tenant: "T"})
	require.NoError(t, err)
	require.Equal(t, 150.0, got.Revenue)
	require.Equal(t, 50.0, got.Cost)
	require.Equal(t, 100.0, got.Profit)
	require.InDelta(t, 0.667, got.Margin, 0.001)

	// Zero revenue never divides.
	insert(t, m, store.CollectionBilling,
		store.BillingRecord{Tenant: "Free", CompanyName: "Gratis", CreatedAt: created, IsActive: true, ClientPrice: 0, ProviderPrice: 5},
	)
	free, err := svc.FinanceSummary(context.Background(), Request{Tenant: "Free"})
	require.NoError(t, err)
	require.Zero(t, free.Margin)
	require.Equal(t, -5.0, free.Profit)
}

func TestIntegrationUsersSummaryAndPlans(t *testing.T) {
	m := newIntegrationStore(t)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -20)
	day := 24 * time.Hour
	at := func(d time.Duration) *time.Time { ts := created.Add(d); return &ts }
	limit := func(n int64) *int64 { return &n }
	count := func(n int64) *int64 { return &n }

	insert(t, m, store.CollectionUsers,
		store.RegisteredUser{Tenant: "T", CreatedAt: &created, LimitResetDate: at(day), ConversationCount: count(5), ConversationLimit: limit(2500), CompanyName: "Acme"},
		store.RegisteredUser{Tenant: "T", CreatedAt: &created, LimitResetDate: at(3 * day), ConversationLimit: limit(7500), CompanyName: "Acme"},
		store.RegisteredUser{Tenant: "T", CreatedAt: &created, LimitResetDate: at(2 * day), ConversationCount: count(3), ConversationLimit: limit(7501), CompanyName: "Globex"},
		store.RegisteredUser{Tenant: "T", CreatedAt: &created, TrialMode: true, ConversationCount: count(1), CompanyName: "Initech"},
		store.RegisteredUser{Tenant: "Other", CreatedAt: &created, LimitResetDate: at(day), CompanyName: "Acme"},
	)
	// An active user whose plan limit is missing.
	insert(t, m, store.CollectionUsers, bson.M{
		store.FieldTenant:         "T",
		store.FieldCreatedAt:      created,
		store.FieldTrialMode:      false,
		store.FieldLimitResetDate: now.AddDate(0, 0, -1),
		store.FieldCompanyName:    "Hooli",
	})
	svc := newIntegrationService(t, m, now)
	ctx := context.Background()

	summary, err := svc.UsersSummary(ctx, Request{Tenant: "T"})
	require.NoError(t, err)
	require.EqualValues(t, 5, summary.Total)
	require.EqualValues(t, 4, summary.Active)
	require.EqualValues(t, 1, summary.Demo)
	require.EqualValues(t, 9, *summary.Conversations)
	// trial user has no reset date and is left out of the mean
	wantAvg := float64((day + 3*day + 2*day + 19*day).Milliseconds()) / 4
	require.InDelta(t, wantAvg, *summary.AvgActivationMS, 1)

	dist, err := svc.ClientDistribution(ctx, "T")
	require.NoError(t, err)
	got := map[string]int64{}
	for _, b := range dist {
		got[b.ID] = b.Count
	}
	require.Equal(t, map[string]int64{PlanSmall: 1, PlanMedium: 1, PlanLarge: 1, PlanUnknown: 1}, got)

	series, err := svc.UsersTimeseries(ctx, Request{Tenant: "T", Bucket: BucketDay})
	require.NoError(t, err)
	var total int64
	for _, p := range series {
		total += p.Count
	}
	require.Equal(t, summary.Total, total)

	top, err := svc.TopProfitable(ctx, Request{Tenant: "T"})
	require.NoError(t, err)
	require.Empty(t, top)

	brands, err := svc.BrandsRanking(ctx)
	require.NoError(t, err)
	require.Equal(t, "T", brands[0].ID)
	require.EqualValues(t, 5, brands[0].TotalUsers)
}

func TestIntegrationTopProfitEnrichmentAndTeam(t *testing.T) {
	m := newIntegrationStore(t)
	created := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	insert(t, m, store.CollectionBilling,
		store.BillingRecord{Tenant: "T", CompanyName: "Acme", CreatedAt: created, IsActive: true, ClientPrice: 100, ProviderPrice: 40},
		store.BillingRecord{Tenant: "T", CompanyName: "Globex", CreatedAt: created, IsActive: true, ClientPrice: 300, ProviderPrice: 100},
		store.BillingRecord{Tenant: "T", CompanyName: "Initech", CreatedAt: created, IsActive: true, ClientPrice: 10, ProviderPrice: 1},
	)
	n := int64(42)
	insert(t, m, store.CollectionUsers,
		store.RegisteredUser{Tenant: "T", CreatedAt: &created, ConversationCount: &n, CompanyName: "Acme"},
		store.RegisteredUser{Tenant: "T", CreatedAt: &created, CompanyName: "Acme"},
	)
	insert(t, m, store.CollectionConfigurators,
		store.Configurator{Tenant: "T", AssignableUsers: []string{"a", "b", "c"}, CurrentUserEmail: "one@t.com"},
		store.Configurator{Tenant: "T", CurrentUserEmail: "two@t.com"},
	)
	svc := newIntegrationService(t, m, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	top, err := svc.TopProfitable(ctx, Request{Tenant: "T", Limit: 2})
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "Globex", top[0].ID)
	require.EqualValues(t, 0, top[0].Conversations)
	require.Equal(t, "Acme", top[1].ID)
	require.EqualValues(t, 42, top[1].Conversations)

	from := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	scoped, err := svc.FinanceTimeseries(ctx, Request{Tenant: "T", From: &from, To: &from})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	require.Equal(t, "2025-05", scoped[0].ID)
	require.Equal(t, 410.0, scoped[0].Revenue)

	team, err := svc.TeamSummary(ctx, "T")
	require.NoError(t, err)
	require.Equal(t, TeamSummary{TotalConfigurators: 2, AssignableUsers: 3}, team)
}

func TestIntegrationMalformedTenantDoesNotAffectOthers(t *testing.T) {
	m := newIntegrationStore(t)
	created := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	insert(t, m, store.CollectionBilling,
		store.BillingRecord{Tenant: "T", CompanyName: "Acme", CreatedAt: created, IsActive: true, ClientPrice: 100, ProviderPrice: 40},
	)
	// A numeric company name cannot decode into the string ranking key.
	insert(t, m, store.CollectionBilling, bson.M{
		store.FieldTenant:        "Broken",
		store.FieldCompanyName:   42,
		store.FieldCreatedAt:     created,
		store.FieldIsActive:      true,
		store.FieldClientPrice:   10.0,
		store.FieldProviderPrice: 1.0,
	})
	svc := newIntegrationService(t, m, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := svc.TopProfitable(ctx, Request{Tenant: "Broken"})
		require.ErrorIs(t, err, ErrStoreFailure)
		require.ErrorIs(t, err, store.ErrDecode)
		require.NotErrorIs(t, err, store.ErrUnavailable)
	}

	live, err := svc.FinanceSummary(ctx, Request{Tenant: "T"})
	require.NoError(t, err)
	require.Equal(t, 100.0, live.Revenue)
	require.Equal(t, 60.0, live.Profit)
}
