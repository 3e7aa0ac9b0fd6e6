package analytics

import (
	"errors"
	"strings"
	"time"

	"github.com/chatsell/agency_dash/backend/internal/timeutil"
)

var (
	ErrTenantRequired = errors.New("tenant is required")
	ErrInvalidBucket  = errors.New("invalid bucket")
	ErrInvalidRange   = timeutil.ErrInvalidRange
	ErrInvalidDate    = timeutil.ErrInvalidDate
	// ErrStoreFailure is only returned when fallback payloads are disabled.
	ErrStoreFailure = errors.New("analytics store failure")
)

// Operation names used in logs, spans and metrics.
const (
	OpUsersSummary       = "users_summary"
	OpUsersTimeseries    = "users_timeseries"
	OpFinanceSummary     = "finance_summary"
	OpFinanceTimeseries  = "finance_timeseries"
	OpTopProfitable      = "top_profitable"
	OpClientDistribution = "client_distribution"
	OpTeamSummary        = "team_summary"
	OpBrandsRanking      = "brands_ranking"
)

// Result caps applied by the store.
const (
	maxTimeseriesBuckets = 1000
	maxPlanBuckets       = 10
	maxBrands            = 100
)

// Bucket is a calendar grouping unit for timeseries.
type Bucket string

const (
	BucketDay   Bucket = "day"
	BucketMonth Bucket = "month"
)

// ParseBucket validates raw, returning def when raw is blank.
func ParseBucket(raw string, def Bucket) (Bucket, error) {
	switch Bucket(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return def, nil
	case BucketDay:
		return BucketDay, nil
	case BucketMonth:
		return BucketMonth, nil
	default:
		return "", ErrInvalidBucket
	}
}

// Format is the $dateToString layout for the bucket.
func (b Bucket) Format() string {
	if b == BucketMonth {
		return "%Y-%m"
	}
	return "%Y-%m-%d"
}

func (b Bucket) layout() string {
	if b == BucketMonth {
		return "2006-01"
	}
	return timeutil.DateLayout
}

// Request carries the caller input shared by the tenant-scoped operations. From and
// To are calendar dates; only their date in the reporting timezone is used.
type Request struct {
	Tenant string
	From   *time.Time
	To     *time.Time
	Bucket Bucket
	Limit  int
}

type UsersSummary struct {
	Total           int64    `json:"total" bson:"total"`
	Active          int64    `json:"active" bson:"active"`
	Demo            int64    `json:"demo" bson:"demo"`
	Conversations   *int64   `json:"conversations,omitempty" bson:"conversations,omitempty"`
	AvgActivationMS *float64 `json:"avg_activation_ms,omitempty" bson:"avg_activation_ms,omitempty"`
}

type TimeseriesPoint struct {
	ID    string `json:"_id" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

type FinanceSummary struct {
	Revenue float64 `json:"revenue" bson:"revenue"`
	Cost    float64 `json:"cost" bson:"cost"`
	Profit  float64 `json:"profit" bson:"profit"`
	Margin  float64 `json:"margin" bson:"margin"`
}

type FinancePoint struct {
	ID      string  `json:"_id" bson:"_id"`
	Revenue float64 `json:"revenue" bson:"revenue"`
	Cost    float64 `json:"cost" bson:"cost"`
	Profit  float64 `json:"profit" bson:"profit"`
}

// CompanyProfit is one client company of a tenant ranked by profit.
type CompanyProfit struct {
	ID            string  `json:"_id" bson:"_id"`
	Revenue       float64 `json:"revenue" bson:"revenue"`
	Cost          float64 `json:"cost" bson:"cost"`
	Profit        float64 `json:"profit" bson:"profit"`
	Conversations int64   `json:"conversations" bson:"conversations"`
}

// PlanBucket counts active users per plan-size class.
type PlanBucket struct {
	ID    string `json:"_id" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

type TeamSummary struct {
	TotalConfigurators int64 `json:"total_configurators" bson:"total_configurators"`
	AssignableUsers    int64 `json:"assignable_users" bson:"assignable_users"`
}

type BrandRank struct {
	ID          string `json:"_id" bson:"_id"`
	TotalUsers  int64  `json:"total_users" bson:"total_users"`
	ActiveUsers int64  `json:"active_users" bson:"active_users"`
}

// Plan-size classes for ClientDistribution.
const (
	PlanSmall   = "Small"
	PlanMedium  = "Medium"
	PlanLarge   = "Large"
	PlanUnknown = "Unknown"
)

// Plan thresholds, inclusive on the lower class.
const (
	smallPlanMax  = 2500
	mediumPlanMax = 7500
)
