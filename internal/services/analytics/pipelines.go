package analytics

import (
	"time"

	"github.com/chatsell/agency_dash/backend/internal/query"
	"github.com/chatsell/agency_dash/backend/internal/store"
)

// UsersSummaryPipeline folds every matched user into a single row. Active users are
// judged against threshold, independent of the created_at window in filter.
func UsersSummaryPipeline(filter query.Predicate, threshold time.Time) query.Pipeline {
	reset := query.Ref(store.FieldLimitResetDate)
	created := query.Ref(store.FieldCreatedAt)
	return query.Pipeline{
		query.Match{Filter: filter},
		query.Group{ID: nil, Fields: []query.Accumulator{
			query.Count("total"),
			query.Sum("conversations", query.IfNull(query.Ref(store.FieldConversationCount), 0)),
			query.Sum("active", query.CountIf(activeUserExpr(threshold))),
			query.Sum("demo", query.CountIf(query.EqExpr(query.Ref(store.FieldTrialMode), true))),
			// $avg skips the null branch, so users missing either date do not dilute the mean.
			query.Avg("avg_activation_ms", query.Cond(
				query.And(query.IsDate(reset), query.IsDate(created)),
				query.Subtract(reset, created),
				nil,
			)),
		}},
		query.Project{Fields: []query.Field{query.Exclude("_id")}},
	}
}

// UsersTimeseriesPipeline counts registrations per calendar bucket in timezone.
func UsersTimeseriesPipeline(filter query.Predicate, bucket Bucket, timezone string) query.Pipeline {
	return query.Pipeline{
		query.Match{Filter: filter},
		query.Group{
			ID:     query.DateToString(bucket.Format(), query.Ref(store.FieldCreatedAt), timezone),
			Fields: []query.Accumulator{query.Count("count")},
		},
		query.Sort{Keys: []query.SortKey{query.Asc("_id")}},
		query.Limit(maxTimeseriesBuckets),
	}
}

func financeTotals() []query.Accumulator {
	return []query.Accumulator{
		query.Sum("revenue", query.Ref(store.FieldClientPrice)),
		query.Sum("cost", query.Ref(store.FieldProviderPrice)),
	}
}

func profitExpr() any {
	return query.Subtract(query.Ref("revenue"), query.Ref("cost"))
}

// FinanceSummaryPipeline totals revenue and cost of billing records matched by an
// active-only filter and derives profit and margin.
func FinanceSummaryPipeline(filter query.Predicate) query.Pipeline {
	return query.Pipeline{
		query.Match{Filter: filter},
		query.Group{ID: nil, Fields: financeTotals()},
		query.Project{Fields: []query.Field{
			query.Exclude("_id"),
			query.Include("revenue"),
			query.Include("cost"),
			query.Computed("profit", profitExpr()),
			query.Computed("margin", query.Cond(
				query.EqExpr(query.Ref("revenue"), 0),
				0,
				query.Divide(profitExpr(), query.Ref("revenue")),
			)),
		}},
	}
}

// FinanceTimeseriesPipeline buckets billing by calendar month in timezone.
func FinanceTimeseriesPipeline(filter query.Predicate, timezone string) query.Pipeline {
	return query.Pipeline{
		query.Match{Filter: filter},
		query.Group{
			ID:     query.DateToString(BucketMonth.Format(), query.Ref(store.FieldCreatedAt), timezone),
			Fields: financeTotals(),
		},
		query.AddFields{Fields: []query.Field{query.Computed("profit", profitExpr())}},
		query.Sort{Keys: []query.SortKey{query.Asc("_id")}},
		query.Limit(maxTimeseriesBuckets),
	}
}

// TopProfitPipeline ranks client companies by profit. Ties break on company name.
// Conversations are attached afterwards by the enrichment fan-out.
func TopProfitPipeline(filter query.Predicate, limit int) query.Pipeline {
	return query.Pipeline{
		query.Match{Filter: filter},
		query.Group{ID: query.Ref(store.FieldCompanyName), Fields: financeTotals()},
		query.AddFields{Fields: []query.Field{query.Computed("profit", profitExpr())}},
		query.Sort{Keys: []query.SortKey{query.Desc("profit"), query.Asc("_id")}},
		query.Limit(limit),
	}
}

// CompanyConversationsPipeline sums the conversation counts of one client company.
func CompanyConversationsPipeline(tenant, company string) query.Pipeline {
	return query.Pipeline{
		query.Match{Filter: query.Where().
			Eq(store.FieldTenant, tenant).
			Eq(store.FieldCompanyName, company)},
		query.Group{ID: nil, Fields: []query.Accumulator{
			query.Sum("conversations", query.IfNull(query.Ref(store.FieldConversationCount), 0)),
		}},
	}
}

// planClassExpr classifies the conversation limit. Non-numeric values, including a
// missing field, are checked first because null compares below every number.
func planClassExpr() any {
	limit := query.Ref(store.FieldConversationLimit)
	return query.Switch(PlanLarge,
		query.Branch{Case: query.Not(query.IsNumber(limit)), Then: PlanUnknown},
		query.Branch{Case: query.LteExpr(limit, smallPlanMax), Then: PlanSmall},
		query.Branch{Case: query.LteExpr(limit, mediumPlanMax), Then: PlanMedium},
	)
}

// ClientDistributionPipeline counts currently active users per plan class. The
// request date window never applies here.
func ClientDistributionPipeline(tenant string, threshold time.Time) query.Pipeline {
	return query.Pipeline{
		query.Match{Filter: activeUsersFilter(tenant, threshold)},
		query.Project{Fields: []query.Field{query.Computed("plan_type", planClassExpr())}},
		query.Group{ID: query.Ref("plan_type"), Fields: []query.Accumulator{query.Count("count")}},
		query.Sort{Keys: []query.SortKey{query.Asc("_id")}},
		query.Limit(maxPlanBuckets),
	}
}

// TeamSummaryPipeline counts configurators and their assignable users.
func TeamSummaryPipeline(tenant string) query.Pipeline {
	return query.Pipeline{
		query.Match{Filter: query.Where().Eq(store.FieldTenant, tenant)},
		query.Group{ID: nil, Fields: []query.Accumulator{
			query.Count("total_configurators"),
			query.Sum("assignable_users", query.Size(query.IfNull(query.Ref(store.FieldAssignableUsers), []any{}))),
		}},
		query.Project{Fields: []query.Field{query.Exclude("_id")}},
	}
}

// BrandsRankingPipeline ranks every tenant by user count. It is the only
// cross-tenant view.
func BrandsRankingPipeline(threshold time.Time) query.Pipeline {
	return query.Pipeline{
		query.Match{Filter: query.Where().Ne(store.FieldTenant, nil)},
		query.Group{ID: query.Ref(store.FieldTenant), Fields: []query.Accumulator{
			query.Count("total_users"),
			query.Sum("active_users", query.CountIf(activeUserExpr(threshold))),
		}},
		query.Sort{Keys: []query.SortKey{query.Desc("total_users"), query.Asc("_id")}},
		query.Limit(maxBrands),
	}
}
