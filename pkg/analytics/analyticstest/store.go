// Package analyticstest provides an in-memory analytics.Store for tests.
package analyticstest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/providerstats/pkg/analytics"
)

// Lead is one row of the lead log.
type Lead struct {
	ProviderID int64
	Converted  bool
	CreatedAt  time.Time
}

type metricKey struct {
	providerID int64
	day        int64
}

// Store is a goroutine-safe in-memory analytics.Store.
type Store struct {
	mu        sync.Mutex
	providers map[int64]analytics.Provider
	leads     []Lead
	pageViews map[int64][]time.Time
	reviews   map[int64][]int
	admins    []string
	metrics   map[metricKey]*analytics.MetricRecord
	nextID    int64

	// PageViewsUnavailable makes CountPageViews report a missing source.
	PageViewsUnavailable bool
	// ProviderErrors fails every per-provider read for the given ids.
	ProviderErrors map[int64]error
	// ListErr fails ListApprovedProviders.
	ListErr error
	// SummarizeErr fails SummarizeMetrics.
	SummarizeErr error
}

var _ analytics.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		providers:      make(map[int64]analytics.Provider),
		pageViews:      make(map[int64][]time.Time),
		reviews:        make(map[int64][]int),
		metrics:        make(map[metricKey]*analytics.MetricRecord),
		ProviderErrors: make(map[int64]error),
	}
}

// AddProvider inserts or replaces a provider.
func (s *Store) AddProvider(p analytics.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
}

// AddLeads appends n leads for provider at t.
func (s *Store) AddLeads(providerID int64, t time.Time, n int, converted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.leads = append(s.leads, Lead{ProviderID: providerID, Converted: converted, CreatedAt: t.UTC()})
	}
}

// AddPageViews appends n page views for provider at t.
func (s *Store) AddPageViews(providerID int64, t time.Time, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.pageViews[providerID] = append(s.pageViews[providerID], t.UTC())
	}
}

// AddReview records a rating.
func (s *Store) AddReview(providerID int64, rating int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[providerID] = append(s.reviews[providerID], rating)
}

// AddAdmin records an admin email.
func (s *Store) AddAdmin(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins = append(s.admins, email)
}

// PutMetric stores a copy of rec as is, assigning an id when missing.
func (s *Store) PutMetric(rec analytics.MetricRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Date = analytics.DayStart(rec.Date)
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	}
	s.metrics[metricKey{rec.ProviderID, rec.Date.Unix()}] = &rec
}

// Metric returns a copy of the stored record, if any.
func (s *Store) Metric(providerID int64, day time.Time) (analytics.MetricRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metrics[metricKey{providerID, analytics.DayStart(day).Unix()}]
	if !ok {
		return analytics.MetricRecord{}, false
	}
	return *m, true
}

// MetricCount is the number of stored records.
func (s *Store) MetricCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.metrics)
}

func (s *Store) providerErr(id int64) error {
	if err, ok := s.ProviderErrors[id]; ok {
		return err
	}
	return nil
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

// GetProvider implements analytics.Store.
func (s *Store) GetProvider(_ context.Context, id int64) (*analytics.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %d: %w", id, analytics.ErrProviderNotFound)
	}
	return &p, nil
}

// ListApprovedProviders implements analytics.Store.
func (s *Store) ListApprovedProviders(context.Context) ([]analytics.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var out []analytics.Provider
	for _, p := range s.providers {
		if p.Status == analytics.StatusApproved {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListAdminEmails implements analytics.Store.
func (s *Store) ListAdminEmails(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.admins...), nil
}

func (s *Store) countLeads(providerID int64, from, to time.Time, convertedOnly bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.providerErr(providerID); err != nil {
		return 0, err
	}
	var n int64
	for _, l := range s.leads {
		if l.ProviderID == providerID && inWindow(l.CreatedAt, from, to) && (!convertedOnly || l.Converted) {
			n++
		}
	}
	return n, nil
}

// CountLeads implements analytics.Store.
func (s *Store) CountLeads(_ context.Context, providerID int64, from, to time.Time) (int64, error) {
	return s.countLeads(providerID, from, to, false)
}

// CountConversions implements analytics.Store.
func (s *Store) CountConversions(_ context.Context, providerID int64, from, to time.Time) (int64, error) {
	return s.countLeads(providerID, from, to, true)
}

// CountPageViews implements analytics.Store.
func (s *Store) CountPageViews(_ context.Context, providerID int64, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.providerErr(providerID); err != nil {
		return 0, err
	}
	if s.PageViewsUnavailable {
		return 0, fmt.Errorf("page views: %w", analytics.ErrSourceUnavailable)
	}
	var n int64
	for _, t := range s.pageViews[providerID] {
		if inWindow(t, from, to) {
			n++
		}
	}
	return n, nil
}

// ReviewStats implements analytics.Store.
func (s *Store) ReviewStats(_ context.Context, providerID int64) (float64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.providerErr(providerID); err != nil {
		return 0, 0, err
	}
	ratings := s.reviews[providerID]
	if len(ratings) == 0 {
		return 0, 0, nil
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return analytics.Round(float64(sum)/float64(len(ratings)), 1), int64(len(ratings)), nil
}

// UpsertMetric implements analytics.Store.
func (s *Store) UpsertMetric(_ context.Context, rec *analytics.MetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	key := metricKey{rec.ProviderID, analytics.DayStart(rec.Date).Unix()}
	if existing, ok := s.metrics[key]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else {
		s.nextID++
		rec.ID = s.nextID
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	stored := *rec
	stored.Date = analytics.DayStart(rec.Date)
	s.metrics[key] = &stored
	return nil
}

// GetMetric implements analytics.Store.
func (s *Store) GetMetric(_ context.Context, providerID int64, day time.Time) (*analytics.MetricRecord, error) {
	m, ok := s.Metric(providerID, day)
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// EnsureMetric implements analytics.Store.
func (s *Store) EnsureMetric(_ context.Context, providerID int64, day time.Time) (*analytics.MetricRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := analytics.DayStart(day)
	key := metricKey{providerID, d.Unix()}
	m, ok := s.metrics[key]
	if !ok {
		now := time.Now().UTC()
		s.nextID++
		m = &analytics.MetricRecord{
			ID:              s.nextID,
			ProviderID:      providerID,
			Date:            d,
			PageViewsSource: analytics.SourceUnknown,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		s.metrics[key] = m
	}
	cp := *m
	return &cp, nil
}

func (s *Store) byID(id int64) (*analytics.MetricRecord, error) {
	for _, m := range s.metrics {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("metrics %d not found", id)
}

// UpdateMetricCounts implements analytics.Store.
func (s *Store) UpdateMetricCounts(_ context.Context, rec *analytics.MetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.byID(rec.ID)
	if err != nil {
		return err
	}
	m.LeadsReceived = rec.LeadsReceived
	m.PageViews = rec.PageViews
	m.Conversions = rec.Conversions
	m.ConversionPointLeads = analytics.ConversionPointLeads(rec.Conversions)
	m.PageViewsSource = rec.PageViewsSource
	m.AverageRating = rec.AverageRating
	m.TotalReviews = rec.TotalReviews
	m.ResponseTime = rec.ResponseTime
	m.ProfileViews = rec.ProfileViews
	m.IntentionScore = rec.IntentionScore
	m.Simulated = rec.Simulated
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateMetricDerived implements analytics.Store.
func (s *Store) UpdateMetricDerived(_ context.Context, id int64, conversionRate, monthlyGrowth float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.byID(id)
	if err != nil {
		return err
	}
	m.ConversionRate = conversionRate
	m.MonthlyGrowth = monthlyGrowth
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// SummarizeMetrics implements analytics.Store.
func (s *Store) SummarizeMetrics(_ context.Context, from, to time.Time) ([]analytics.ProviderTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SummarizeErr != nil {
		return nil, s.SummarizeErr
	}
	from, to = analytics.DayStart(from), analytics.DayStart(to)

	byProvider := make(map[int64]*analytics.ProviderTotals)
	for _, m := range s.metrics {
		if !inWindow(m.Date, from, to) {
			continue
		}
		t, ok := byProvider[m.ProviderID]
		if !ok {
			t = &analytics.ProviderTotals{ProviderID: m.ProviderID, ProviderName: s.providers[m.ProviderID].Name}
			byProvider[m.ProviderID] = t
		}
		t.Leads += m.LeadsReceived
		t.PageViews += m.PageViews
		t.Conversions += m.Conversions
		t.Days++
	}

	totals := make([]analytics.ProviderTotals, 0, len(byProvider))
	for _, t := range byProvider {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].ProviderID < totals[j].ProviderID })
	return totals, nil
}
