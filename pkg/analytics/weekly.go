package analytics

import (
	"context"
	"fmt"
	"time"
)

// WeekTotals compares one provider's week with the week before.
type WeekTotals struct {
	Provider          Provider       `json:"provider"`
	Current           ProviderTotals `json:"current"`
	Previous          ProviderTotals `json:"previous"`
	LeadsGrowth       float64        `json:"leads_growth"`
	PageViewsGrowth   float64        `json:"page_views_growth"`
	ConversionsGrowth float64        `json:"conversions_growth"`
}

// WeeklyReport is the content of the Monday report.
type WeeklyReport struct {
	WeekStart         time.Time        `json:"week_start"`
	WeekEnd           time.Time        `json:"week_end"`
	Providers         []WeekTotals     `json:"providers"`
	Current           PlatformSummary  `json:"current"`
	Previous          PlatformSummary  `json:"previous"`
	LeadsGrowth       float64          `json:"leads_growth"`
	ConversionsGrowth float64          `json:"conversions_growth"`
	TopByLeads        []ProviderTotals `json:"top_by_leads"`
}

// ReportWeek returns the last complete Monday-to-Sunday week before now as a
// half-open range.
func ReportWeek(now time.Time) (time.Time, time.Time) {
	end := WeekStart(now)
	return end.AddDate(0, 0, -7), end
}

// BuildWeeklyReport compares the last complete week with the one before for
// every approved provider.
func BuildWeeklyReport(ctx context.Context, store Store, now time.Time) (*WeeklyReport, error) {
	from, to := ReportWeek(now)
	prevFrom := from.AddDate(0, 0, -7)

	providers, err := store.ListApprovedProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	current, err := store.SummarizeMetrics(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize current week: %w", err)
	}
	previous, err := store.SummarizeMetrics(ctx, prevFrom, from)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize previous week: %w", err)
	}

	cur := indexTotals(current)
	prev := indexTotals(previous)

	report := &WeeklyReport{
		WeekStart: from,
		WeekEnd:   to.AddDate(0, 0, -1),
		Current:   Summarize(current, from, to, now),
		Previous:  Summarize(previous, prevFrom, from, now),
	}
	report.LeadsGrowth = GrowthPercent(report.Current.TotalLeads, report.Previous.TotalLeads)
	report.ConversionsGrowth = GrowthPercent(report.Current.TotalConversions, report.Previous.TotalConversions)
	report.TopByLeads = TopBy(current, 5, byLeads)

	for _, p := range providers {
		c := cur[p.ID]
		pr := prev[p.ID]
		c.ProviderID, c.ProviderName = p.ID, p.Name
		pr.ProviderID, pr.ProviderName = p.ID, p.Name
		report.Providers = append(report.Providers, WeekTotals{
			Provider:          p,
			Current:           c,
			Previous:          pr,
			LeadsGrowth:       GrowthPercent(c.Leads, pr.Leads),
			PageViewsGrowth:   GrowthPercent(c.PageViews, pr.PageViews),
			ConversionsGrowth: GrowthPercent(c.Conversions, pr.Conversions),
		})
	}
	return report, nil
}

func indexTotals(totals []ProviderTotals) map[int64]ProviderTotals {
	m := make(map[int64]ProviderTotals, len(totals))
	for _, t := range totals {
		m[t.ProviderID] = t
	}
	return m
}
