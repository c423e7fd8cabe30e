package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/platinummonkey/providerstats/pkg/analytics"
	"github.com/platinummonkey/providerstats/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []Message
	fail map[string]error
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	if err, ok := f.fail[msg.To[0]]; ok {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func testReport() *analytics.WeeklyReport {
	acme := analytics.Provider{ID: 1, Name: "Acme Care", Email: "acme@example.com", Status: analytics.StatusApproved}
	return &analytics.WeeklyReport{
		WeekStart: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		WeekEnd:   time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC),
		Providers: []analytics.WeekTotals{{
			Provider:          acme,
			Current:           analytics.ProviderTotals{ProviderID: 1, Leads: 12, PageViews: 400, Conversions: 10},
			Previous:          analytics.ProviderTotals{ProviderID: 1, Leads: 8, PageViews: 500, Conversions: 10},
			LeadsGrowth:       50,
			PageViewsGrowth:   -20,
			ConversionsGrowth: 0,
		}},
		Current:           analytics.PlatformSummary{Providers: 1, TotalLeads: 12, TotalPageViews: 400, TotalConversions: 10},
		Previous:          analytics.PlatformSummary{Providers: 1, TotalLeads: 8, TotalPageViews: 500, TotalConversions: 10},
		LeadsGrowth:       50,
		ConversionsGrowth: 0,
		TopByLeads: []analytics.ProviderTotals{
			{ProviderID: 1, ProviderName: "Acme Care", Leads: 12},
			{ProviderID: 2, ProviderName: "Bright Homes", Leads: 7},
		},
	}
}

func TestSendProviderWeeklySummary(t *testing.T) {
	sender := &fakeSender{}
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	n, err := NewNotifier(sender, nil, metrics)
	require.NoError(t, err)

	report := testReport()
	require.NoError(t, n.SendProviderWeeklySummary(context.Background(), report, report.Providers[0]))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, []string{"acme@example.com"}, msg.To)
	assert.Equal(t, KindProviderWeekly, msg.Kind)
	assert.Equal(t, "Your weekly summary for 2024-06-03 to 2024-06-09", msg.Subject)
	assert.Contains(t, msg.HTML, "Hi Acme Care")
	assert.Contains(t, msg.HTML, "+50.00%")
	assert.Contains(t, msg.HTML, "-20.00%")
	assert.Contains(t, msg.Text, "Leads: 12 (+50.00%)")
	assert.Contains(t, msg.Text, "Conversion rate: 2.5%")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EmailsSentTotal.WithLabelValues(KindProviderWeekly, "sent")))
}

func TestSendProviderWeeklySummary_NoEmail(t *testing.T) {
	sender := &fakeSender{}
	n, err := NewNotifier(sender, nil, nil)
	require.NoError(t, err)

	report := testReport()
	wt := report.Providers[0]
	wt.Provider.Email = ""
	err = n.SendProviderWeeklySummary(context.Background(), report, wt)
	assert.ErrorIs(t, err, ErrNoRecipient)
	assert.Empty(t, sender.sent)
}

func TestSendAdminWeeklySummary(t *testing.T) {
	boom := errors.New("mailbox full")
	sender := &fakeSender{fail: map[string]error{"b@example.com": boom}}
	n, err := NewNotifier(sender, nil, nil)
	require.NoError(t, err)

	err = n.SendAdminWeeklySummary(context.Background(), testReport(), []string{"a@example.com", "b@example.com", "c@example.com"})
	assert.ErrorIs(t, err, boom)

	require.Len(t, sender.sent, 2)
	msg := sender.sent[0]
	assert.Equal(t, KindAdminWeekly, msg.Kind)
	assert.Equal(t, "Platform summary for 2024-06-03 to 2024-06-09", msg.Subject)
	assert.Contains(t, msg.HTML, "<li>Acme Care: 12 leads</li>")
	assert.Contains(t, msg.HTML, "<li>Bright Homes: 7 leads</li>")
	assert.Contains(t, msg.Text, "1. Acme Care: 12")
	assert.Contains(t, msg.Text, "2. Bright Homes: 7")
	assert.Equal(t, "c@example.com", sender.sent[1].To[0])
}

func TestSendAdminWeeklySummary_NoAdmins(t *testing.T) {
	sender := &fakeSender{}
	n, err := NewNotifier(sender, nil, nil)
	require.NoError(t, err)

	require.NoError(t, n.SendAdminWeeklySummary(context.Background(), testReport(), nil))
	assert.Empty(t, sender.sent)
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: observability.NewLogger(observability.InfoLevel, &buf)}
	require.NoError(t, s.Send(context.Background(), Message{To: []string{"x@example.com"}, Subject: "hello", Kind: KindAdminWeekly}))
	assert.Contains(t, buf.String(), "x@example.com")
	assert.Contains(t, buf.String(), "hello")
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender(t *testing.T) {
	client := &fakeSES{}
	s := NewSESSenderWithClient(client, "reports@example.com")

	err := s.Send(context.Background(), Message{
		To:      []string{"acme@example.com"},
		Subject: "Weekly",
		HTML:    "<p>hi</p>",
		Text:    "hi",
		Kind:    KindProviderWeekly,
	})
	require.NoError(t, err)

	in := client.input
	require.NotNil(t, in)
	assert.Equal(t, "reports@example.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"acme@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Weekly", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "<p>hi</p>", aws.ToString(in.Content.Simple.Body.Html.Data))
	assert.Equal(t, "hi", aws.ToString(in.Content.Simple.Body.Text.Data))
	require.Len(t, in.EmailTags, 1)
	assert.Equal(t, KindProviderWeekly, aws.ToString(in.EmailTags[0].Value))

	client.err = errors.New("throttled")
	err = s.Send(context.Background(), Message{To: []string{"acme@example.com"}})
	assert.ErrorContains(t, err, "throttled")
}
