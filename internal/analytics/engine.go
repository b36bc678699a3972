// Package analytics computes dashboard aggregates from order and catalog
// snapshots. Every function is pure: same snapshot in, same numbers out,
// regardless of call order. Callers load the snapshot through the stores and
// pass it in; nothing here caches or writes.
package analytics

import (
	"sort"
	"time"

	"github.com/leafcart/strain-admin/internal/catalog"
	"github.com/leafcart/strain-admin/internal/orders"
)

// Stats is the top-of-dashboard summary.
type Stats struct {
	TotalStrains        int   `json:"total_strains"`
	TotalInventoryGrams int64 `json:"total_inventory_grams"`
	TotalOrders         int   `json:"total_orders"`
	TotalRevenueCents   int64 `json:"total_revenue_cents"`
	LowStockCount       int   `json:"low_stock_count"`
}

// OrderStats is time-windowed revenue plus a per-status order count.
type OrderStats struct {
	TodayRevenueCents int64                 `json:"today_revenue_cents"`
	WeekRevenueCents  int64                 `json:"week_revenue_cents"`
	MonthRevenueCents int64                 `json:"month_revenue_cents"`
	StatusCounts      map[orders.Status]int `json:"status_counts"`
}

// SellerRank is one row of the top-sellers table.
type SellerRank struct {
	StrainID          string `json:"strain_id"`
	StrainName        string `json:"strain_name"`
	TotalGrams        int64  `json:"total_grams"`
	TotalRevenueCents int64  `json:"total_revenue_cents"`
	OrderCount        int    `json:"order_count"`
}

// OrderSummary is a recent-orders row annotated with its item count.
type OrderSummary struct {
	OrderID    string        `json:"order_id"`
	Status     orders.Status `json:"status"`
	Email      string        `json:"email,omitempty"`
	TotalCents int64         `json:"total_cents"`
	ItemCount  int           `json:"item_count"`
	CreatedAt  time.Time     `json:"created_at"`
}

// countsRevenue reports whether an order's money is realized. PENDING was
// never paid and CANCELLED never ships, so neither counts.
func countsRevenue(st orders.Status) bool {
	return st == orders.StatusPaid || st == orders.StatusFulfilled
}

// RevenueStats buckets realized revenue into rolling day-anchored windows in
// loc: today (since midnight), the 7 calendar days ending today, and the 30
// calendar days ending today, so today <= week <= month holds for any query
// time. Status counts cover all orders regardless of revenue.
func RevenueStats(orderList []orders.Order, now time.Time, loc *time.Location) OrderStats {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	weekStart := dayStart.AddDate(0, 0, -6)
	monthStart := dayStart.AddDate(0, 0, -29)

	stats := OrderStats{StatusCounts: make(map[orders.Status]int, len(orders.AllStatuses))}
	for _, st := range orders.AllStatuses {
		stats.StatusCounts[st] = 0
	}

	for _, o := range orderList {
		stats.StatusCounts[o.Status]++
		if !countsRevenue(o.Status) {
			continue
		}
		created := o.CreatedAt.In(loc)
		if !created.Before(monthStart) {
			stats.MonthRevenueCents += o.TotalCents
		}
		if !created.Before(weekStart) {
			stats.WeekRevenueCents += o.TotalCents
		}
		if !created.Before(dayStart) {
			stats.TodayRevenueCents += o.TotalCents
		}
	}
	return stats
}

// TopSellers ranks strains by realized revenue across PAID and FULFILLED
// orders: revenue descending, then total grams descending, then strain id
// ascending. Strains with no completed sales never appear. Line items whose
// strain was deleted from the catalog (nil reference) are skipped: there is
// no strain left to rank.
func TopSellers(orderList []orders.Order, limit int) []SellerRank {
	if limit <= 0 {
		return nil
	}

	byStrain := map[string]*SellerRank{}
	for _, o := range orderList {
		if !countsRevenue(o.Status) {
			continue
		}
		seen := map[string]bool{}
		for _, it := range o.Items {
			if it.StrainID == "" {
				continue
			}
			rank, ok := byStrain[it.StrainID]
			if !ok {
				rank = &SellerRank{StrainID: it.StrainID, StrainName: it.StrainName}
				byStrain[it.StrainID] = rank
			}
			rank.TotalGrams += it.Grams
			rank.TotalRevenueCents += it.LineTotalCents
			if !seen[it.StrainID] {
				rank.OrderCount++
				seen[it.StrainID] = true
			}
		}
	}

	ranks := make([]SellerRank, 0, len(byStrain))
	for _, r := range byStrain {
		ranks = append(ranks, *r)
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].TotalRevenueCents != ranks[j].TotalRevenueCents {
			return ranks[i].TotalRevenueCents > ranks[j].TotalRevenueCents
		}
		if ranks[i].TotalGrams != ranks[j].TotalGrams {
			return ranks[i].TotalGrams > ranks[j].TotalGrams
		}
		return ranks[i].StrainID < ranks[j].StrainID
	})

	if len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks
}

// RecentOrders returns the newest orders first (created_at descending,
// order id descending as the deterministic tiebreak), at most limit rows.
func RecentOrders(orderList []orders.Order, limit int) []OrderSummary {
	if limit <= 0 {
		return nil
	}

	summaries := make([]OrderSummary, 0, len(orderList))
	for _, o := range orderList {
		summaries = append(summaries, OrderSummary{
			OrderID:    o.OrderID,
			Status:     o.Status,
			Email:      o.Email,
			TotalCents: o.TotalCents,
			ItemCount:  len(o.Items),
			CreatedAt:  o.CreatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].OrderID > summaries[j].OrderID
	})

	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

// DashboardStats folds catalog and order snapshots into the header stats.
// Revenue here is all-time realized revenue.
func DashboardStats(strains []catalog.Strain, orderList []orders.Order, lowStockThreshold int64) Stats {
	if lowStockThreshold <= 0 {
		lowStockThreshold = catalog.DefaultLowStockThreshold
	}

	stats := Stats{
		TotalStrains: len(strains),
		TotalOrders:  len(orderList),
	}
	for _, st := range strains {
		stats.TotalInventoryGrams += st.AvailableGrams
		if st.AvailableGrams < lowStockThreshold {
			stats.LowStockCount++
		}
	}
	for _, o := range orderList {
		if countsRevenue(o.Status) {
			stats.TotalRevenueCents += o.TotalCents
		}
	}
	return stats
}
