package analytics

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/chatsell/agency_dash/backend/internal/query"
	"github.com/chatsell/agency_dash/backend/internal/store"
	"github.com/chatsell/agency_dash/backend/internal/timeutil"
)

// TenantFilter is the base predicate shared by every tenant-scoped query. The
// created_at constraint carries only the bounds present in window.
func TenantFilter(tenant string, window timeutil.Range, activeOnly bool) query.Predicate {
	p := query.Where().Eq(store.FieldTenant, tenant)
	if activeOnly {
		p = p.Eq(store.FieldIsActive, true)
	}
	return p.Between(store.FieldCreatedAt, window.From, window.To)
}

// activeUsersFilter selects users that are out of trial and reset on or after threshold.
func activeUsersFilter(tenant string, threshold time.Time) query.Predicate {
	return query.Where().
		Eq(store.FieldTenant, tenant).
		Eq(store.FieldTrialMode, false).
		Gte(store.FieldLimitResetDate, threshold)
}

// activeUserExpr is the expression form of the active-user rule for $group stages.
// A missing reset date sorts below every date so it never counts as active.
func activeUserExpr(threshold time.Time) bson.D {
	return query.And(
		query.EqExpr(query.Ref(store.FieldTrialMode), false),
		query.GteExpr(query.Ref(store.FieldLimitResetDate), threshold),
	)
}
