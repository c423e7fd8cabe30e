package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/osteele/liquid"
	"github.com/platinummonkey/providerstats/pkg/analytics"
	"github.com/platinummonkey/providerstats/pkg/observability"
)

// Message kinds.
const (
	KindProviderWeekly = "provider_weekly"
	KindAdminWeekly    = "admin_weekly"
)

// ErrNoRecipient is returned when a message has nobody to go to.
var ErrNoRecipient = errors.New("notify: no recipient")

type template struct {
	subject *liquid.Template
	html    *liquid.Template
	text    *liquid.Template
}

// Notifier renders report emails and hands them to a Sender.
type Notifier struct {
	sender   Sender
	logger   *observability.Logger
	metrics  *observability.Metrics
	provider template
	admin    template
}

// NewNotifier parses the report templates.
func NewNotifier(sender Sender, logger *observability.Logger, metrics *observability.Metrics) (*Notifier, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	engine := liquid.NewEngine()
	engine.RegisterFilter("signed", signed)

	provider, err := parseTemplate(engine, providerWeeklySubject, providerWeeklyHTML, providerWeeklyText)
	if err != nil {
		return nil, fmt.Errorf("provider weekly template: %w", err)
	}
	admin, err := parseTemplate(engine, adminWeeklySubject, adminWeeklyHTML, adminWeeklyText)
	if err != nil {
		return nil, fmt.Errorf("admin weekly template: %w", err)
	}

	return &Notifier{
		sender:   sender,
		logger:   logger,
		metrics:  metrics,
		provider: provider,
		admin:    admin,
	}, nil
}

func parseTemplate(engine *liquid.Engine, subject, html, text string) (template, error) {
	var t template
	var err error
	if t.subject, err = parse(engine, subject); err != nil {
		return t, err
	}
	if t.html, err = parse(engine, html); err != nil {
		return t, err
	}
	if t.text, err = parse(engine, text); err != nil {
		return t, err
	}
	return t, nil
}

func parse(engine *liquid.Engine, src string) (*liquid.Template, error) {
	tpl, err := engine.ParseString(src)
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

func (t template) render(bindings map[string]interface{}) (subject, html, text string, err error) {
	if subject, err = renderString(t.subject, bindings); err != nil {
		return
	}
	if html, err = renderString(t.html, bindings); err != nil {
		return
	}
	text, err = renderString(t.text, bindings)
	return
}

func renderString(tpl *liquid.Template, bindings map[string]interface{}) (string, error) {
	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SendProviderWeeklySummary emails one provider their week-over-week totals.
func (n *Notifier) SendProviderWeeklySummary(ctx context.Context, report *analytics.WeeklyReport, wt analytics.WeekTotals) error {
	if wt.Provider.Email == "" {
		n.record(KindProviderWeekly, ErrNoRecipient)
		return fmt.Errorf("provider %d: %w", wt.Provider.ID, ErrNoRecipient)
	}

	bindings := map[string]interface{}{
		"provider_name":      wt.Provider.Name,
		"week_start":         report.WeekStart.Format("2006-01-02"),
		"week_end":           report.WeekEnd.Format("2006-01-02"),
		"current":            totalsBindings(wt.Current),
		"previous":           totalsBindings(wt.Previous),
		"leads_growth":       wt.LeadsGrowth,
		"page_views_growth":  wt.PageViewsGrowth,
		"conversions_growth": wt.ConversionsGrowth,
	}
	subject, html, text, err := n.provider.render(bindings)
	if err != nil {
		n.record(KindProviderWeekly, err)
		return fmt.Errorf("failed to render provider summary: %w", err)
	}

	err = n.sender.Send(ctx, Message{
		To:      []string{wt.Provider.Email},
		Subject: subject,
		HTML:    html,
		Text:    text,
		Kind:    KindProviderWeekly,
	})
	n.record(KindProviderWeekly, err)
	return err
}

// SendAdminWeeklySummary emails the platform-wide summary to every admin.
func (n *Notifier) SendAdminWeeklySummary(ctx context.Context, report *analytics.WeeklyReport, admins []string) error {
	if len(admins) == 0 {
		n.logger.Info("No admin recipients for weekly summary")
		return nil
	}

	top := make([]map[string]interface{}, 0, len(report.TopByLeads))
	for _, t := range report.TopByLeads {
		top = append(top, map[string]interface{}{
			"name":        t.ProviderName,
			"leads":       t.Leads,
			"conversions": t.Conversions,
		})
	}
	bindings := map[string]interface{}{
		"week_start": report.WeekStart.Format("2006-01-02"),
		"week_end":   report.WeekEnd.Format("2006-01-02"),
		"providers":  len(report.Providers),
		"current": map[string]interface{}{
			"leads":       report.Current.TotalLeads,
			"page_views":  report.Current.TotalPageViews,
			"conversions": report.Current.TotalConversions,
		},
		"previous": map[string]interface{}{
			"leads":       report.Previous.TotalLeads,
			"page_views":  report.Previous.TotalPageViews,
			"conversions": report.Previous.TotalConversions,
		},
		"leads_growth":       report.LeadsGrowth,
		"conversions_growth": report.ConversionsGrowth,
		"top":                top,
	}
	subject, html, text, err := n.admin.render(bindings)
	if err != nil {
		n.record(KindAdminWeekly, err)
		return fmt.Errorf("failed to render admin summary: %w", err)
	}

	var errs []error
	for _, to := range admins {
		err := n.sender.Send(ctx, Message{
			To:      []string{to},
			Subject: subject,
			HTML:    html,
			Text:    text,
			Kind:    KindAdminWeekly,
		})
		n.record(KindAdminWeekly, err)
		if err != nil {
			n.logger.WithError(err).WithField("to", to).Warn("Failed to send admin summary")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) record(kind string, err error) {
	if n.metrics == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	n.metrics.EmailsSentTotal.WithLabelValues(kind, status).Inc()
}

func totalsBindings(t analytics.ProviderTotals) map[string]interface{} {
	return map[string]interface{}{
		"leads":           t.Leads,
		"page_views":      t.PageViews,
		"conversions":     t.Conversions,
		"conversion_rate": t.ConversionRate(),
	}
}

// signed renders a growth percentage with an explicit sign.
func signed(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+%.2f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
