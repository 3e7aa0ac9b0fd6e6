package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sample payloads served when the store cannot answer. The numbers are fixed so a
// degraded deployment still renders a coherent dashboard.

func fallbackUsersSummary() UsersSummary {
	conversations := int64(4500)
	avg := float64(3 * 24 * time.Hour / time.Millisecond)
	return UsersSummary{
		Total:           125,
		Active:          85,
		Demo:            40,
		Conversations:   &conversations,
		AvgActivationMS: &avg,
	}
}

// fallbackUsersTimeseries yields 30 daily points starting 30 days before now. Month
// buckets fold the same points into their calendar months.
func fallbackUsersTimeseries(now time.Time, loc *time.Location, bucket Bucket) []TimeseriesPoint {
	base := now.In(loc).AddDate(0, 0, -30)
	points := make([]TimeseriesPoint, 0, 30)
	for i := 0; i < 30; i++ {
		label := base.AddDate(0, 0, i).Format(bucket.layout())
		count := int64(i%5) + 2
		if n := len(points); n > 0 && points[n-1].ID == label {
			points[n-1].Count += count
			continue
		}
		points = append(points, TimeseriesPoint{ID: label, Count: count})
	}
	return points
}

func fallbackFinanceSummary() FinanceSummary {
	return FinanceSummary{Revenue: 12350, Cost: 3705, Profit: 8645, Margin: 0.70}
}

// fallbackFinanceTimeseries yields six monthly points, 30 days apart, starting 180
// days before now. Cost is 30% of revenue.
func fallbackFinanceTimeseries(now time.Time, loc *time.Location) []FinancePoint {
	base := now.In(loc).AddDate(0, 0, -180)
	costRatio := decimal.RequireFromString("0.3")
	points := make([]FinancePoint, 0, 6)
	for i := 0; i < 6; i++ {
		revenue := decimal.NewFromInt(int64(2000 + i*500))
		cost := revenue.Mul(costRatio)
		points = append(points, FinancePoint{
			ID:      base.AddDate(0, 0, i*30).Format(BucketMonth.layout()),
			Revenue: revenue.InexactFloat64(),
			Cost:    cost.InexactFloat64(),
			Profit:  revenue.Sub(cost).InexactFloat64(),
		})
	}
	return points
}

var sampleTopProfit = []CompanyProfit{
	{ID: "Alpha Corp", Revenue: 5000, Cost: 1500, Profit: 3500, Conversations: 1200},
	{ID: "Beta LLC", Revenue: 3000, Cost: 900, Profit: 2100, Conversations: 950},
	{ID: "Gamma Inc", Revenue: 2000, Cost: 600, Profit: 1400, Conversations: 600},
	{ID: "Delta Co", Revenue: 1500, Cost: 450, Profit: 1050, Conversations: 450},
	{ID: "Epsilon Ltd", Revenue: 850, Cost: 255, Profit: 595, Conversations: 300},
}

func fallbackTopProfitable(limit int) []CompanyProfit {
	if limit <= 0 || limit > len(sampleTopProfit) {
		limit = len(sampleTopProfit)
	}
	return append([]CompanyProfit(nil), sampleTopProfit[:limit]...)
}

func fallbackClientDistribution() []PlanBucket {
	return []PlanBucket{
		{ID: PlanSmall, Count: 60},
		{ID: PlanMedium, Count: 30},
		{ID: PlanLarge, Count: 10},
		{ID: PlanUnknown, Count: 25},
	}
}

func fallbackTeamSummary() TeamSummary {
	return TeamSummary{TotalConfigurators: 5, AssignableUsers: 15}
}

func fallbackBrandsRanking() []BrandRank {
	return []BrandRank{
		{ID: "Agency Alpha", TotalUsers: 120, ActiveUsers: 80},
		{ID: "Beta Solutions", TotalUsers: 95, ActiveUsers: 70},
		{ID: "Gamma Growth", TotalUsers: 60, ActiveUsers: 40},
		{ID: "Delta Digital", TotalUsers: 45, ActiveUsers: 10},
		{ID: "Echo Enterprise", TotalUsers: 30, ActiveUsers: 5},
		{ID: "Zeta Zone", TotalUsers: 15, ActiveUsers: 2},
	}
}
