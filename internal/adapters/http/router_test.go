package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/core/ports"
)

type ingestorFake struct {
	calls   []string
	outcome ports.IngestOutcome
	err     error
}

func (f *ingestorFake) ProcessNewEmail(_ context.Context, messageID string, channel ports.IngestChannel) (ports.IngestOutcome, error) {
	if channel != ports.ChannelWebhook {
		return "", errors.New("expected webhook channel")
	}
	f.calls = append(f.calls, messageID)
	if f.err != nil {
		return "", f.err
	}
	if f.outcome == "" {
		return ports.OutcomeCreated, nil
	}
	return f.outcome, nil
}

type workflowReaderFake struct {
	record  *domain.WorkflowRecord
	records []domain.WorkflowRecord
	err     error
}

func (f *workflowReaderFake) GetWorkflow(context.Context, string) (*domain.WorkflowRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func (f *workflowReaderFake) ListWorkflows(context.Context, ports.WorkflowQuery) ([]domain.WorkflowRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type healthReporterFake struct {
	report domain.HealthReport
}

func (f *healthReporterFake) IngestionHealth(context.Context, time.Time) (domain.HealthReport, error) {
	return f.report, nil
}

type linkMaintainerFake struct {
	resolved int
}

func (f *linkMaintainerFake) BackfillLegacyLinks(context.Context) (int, error) {
	return f.resolved, nil
}

type pollRunnerFake struct {
	summary ports.PollSummary
	calls   int
}

func (f *pollRunnerFake) RunPoll(context.Context, time.Time) (ports.PollSummary, error) {
	f.calls++
	return f.summary, nil
}

type routerFixture struct {
	ingestor  *ingestorFake
	workflows *workflowReaderFake
	health    *healthReporterFake
	links     *linkMaintainerFake
	poller    *pollRunnerFake
	cfg       Config
}

func newRouterFixture() *routerFixture {
	return &routerFixture{
		ingestor:  &ingestorFake{},
		workflows: &workflowReaderFake{},
		health:    &healthReporterFake{},
		links:     &linkMaintainerFake{},
		poller:    &pollRunnerFake{},
		cfg:       Config{WebhookClientState: "secret-state"},
	}
}

func (fx *routerFixture) handler() http.Handler {
	return NewRouter(fx.ingestor, fx.workflows, fx.health, fx.links, fx.poller, nil, fx.cfg).Handler()
}

func TestWebhookHandshakeEchoesValidationToken(t *testing.T) {
	handler := newRouterFixture().handler()

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "/v1/webhooks/mail?validationToken=abc123", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)

		if res.Code != http.StatusOK {
			t.Fatalf("%s handshake expected 200, got %d", method, res.Code)
		}
		if ct := res.Header().Get("Content-Type"); ct != "text/plain" {
			t.Fatalf("expected text/plain, got %s", ct)
		}
		if res.Body.String() != "abc123" {
			t.Fatalf("expected token echoed verbatim, got %q", res.Body.String())
		}
	}
}

func TestWebhookRejectsClientStateMismatch(t *testing.T) {
	fx := newRouterFixture()
	handler := fx.handler()

	body := `{"value":[{"subscriptionId":"s1","clientState":"wrong","resourceData":{"id":"msg-1"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/mail", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(fx.ingestor.calls) != 0 {
		t.Fatalf("rejected notification must not reach the ingestor, got %v", fx.ingestor.calls)
	}

	var resp map[string]int
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["accepted"] != 0 {
		t.Fatalf("expected 0 accepted, got %d", resp["accepted"])
	}
}

func TestWebhookAcceptsValidNotification(t *testing.T) {
	fx := newRouterFixture()
	handler := fx.handler()

	body := `{"value":[{"subscriptionId":"s1","clientState":"secret-state","resourceData":{"id":"msg-1"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/mail", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(fx.ingestor.calls) != 1 || fx.ingestor.calls[0] != "msg-1" {
		t.Fatalf("expected one ingest call for msg-1, got %v", fx.ingestor.calls)
	}
}

func TestWebhookIngestErrorStillAccepted(t *testing.T) {
	fx := newRouterFixture()
	fx.ingestor.err = errors.New("mail backend down")
	handler := fx.handler()

	body := `{"value":[{"subscriptionId":"s1","clientState":"secret-state","resourceData":{"id":"msg-1"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/mail", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	// The poll path covers the miss; upstream must not retry forever.
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202 despite ingest failure, got %d", res.Code)
	}
}

func TestWebhookRateLimitReturns429(t *testing.T) {
	fx := newRouterFixture()
	fx.cfg.WebhookRatePerSecond = 1
	fx.cfg.WebhookRateBurst = 1
	handler := fx.handler()

	body := `{"value":[]}`
	req1 := httptest.NewRequest(http.MethodPost, "/v1/webhooks/mail", strings.NewReader(body))
	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusAccepted {
		t.Fatalf("first request expected 202, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/v1/webhooks/mail", strings.NewReader(body))
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestGetWorkflowNotFoundMapsTo404(t *testing.T) {
	fx := newRouterFixture()
	fx.workflows.err = domain.WrapError(domain.ErrNotFound, "get workflow", errors.New("no workflow"))
	handler := fx.handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/workflows/SPE4A7-26-Q-9999", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestGetWorkflowReturnsRecord(t *testing.T) {
	fx := newRouterFixture()
	fx.workflows.record = &domain.WorkflowRecord{
		Status:      domain.StateRFQReceived,
		StatusLabel: "RFQ Received",
	}
	handler := fx.handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/workflows/SPE4A7-26-Q-0101", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var record domain.WorkflowRecord
	if err := json.NewDecoder(res.Body).Decode(&record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.Status != domain.StateRFQReceived {
		t.Fatalf("expected rfq_received, got %s", record.Status)
	}
}

func TestListWorkflowsRejectsBadLimit(t *testing.T) {
	handler := newRouterFixture().handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/workflows?limit=banana", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestIngestionHealthShape(t *testing.T) {
	fx := newRouterFixture()
	lastRun := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	fx.health.report = domain.HealthReport{
		Healthy:             false,
		LastRun:             &lastRun,
		ConsecutiveFailures: 4,
		NextLookback: domain.LookbackPlan{
			WindowDays: 30,
			Reason:     "widened after 4 consecutive failures",
		},
		Alert: "CRITICAL: 4 consecutive ingestion failures",
	}
	handler := fx.handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/ingestion/health", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var report domain.HealthReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Healthy {
		t.Fatalf("expected unhealthy report")
	}
	if report.NextLookback.WindowDays != 30 {
		t.Fatalf("expected 30-day next window, got %d", report.NextLookback.WindowDays)
	}
	if !strings.Contains(report.Alert, "CRITICAL") {
		t.Fatalf("expected critical alert, got %q", report.Alert)
	}
}

func TestTriggerPollRunsOnce(t *testing.T) {
	fx := newRouterFixture()
	fx.poller.summary = ports.PollSummary{Scanned: 3, Created: 2, Duplicates: 1}
	handler := fx.handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/ingestion/poll", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if fx.poller.calls != 1 {
		t.Fatalf("expected one poll run, got %d", fx.poller.calls)
	}

	var summary ports.PollSummary
	if err := json.NewDecoder(res.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Scanned != 3 || summary.Created != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestBackfillLinksReportsCount(t *testing.T) {
	fx := newRouterFixture()
	fx.links.resolved = 7
	handler := fx.handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/links/backfill", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp map[string]int
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["resolved"] != 7 {
		t.Fatalf("expected 7 resolved, got %d", resp["resolved"])
	}
}

func TestExportContentType(t *testing.T) {
	fx := newRouterFixture()
	fx.workflows.records = []domain.WorkflowRecord{{
		Status:      domain.StateRFQReceived,
		StatusLabel: "RFQ Received",
		Solicitation: &domain.Solicitation{
			ID:                 "sol-1",
			SolicitationNumber: "SPE4A7-26-Q-0101",
			ReceivedAt:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}}
	handler := fx.handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/workflows/export", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("expected xlsx content type, got %s", ct)
	}
	if res.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}
}

func TestHealthz(t *testing.T) {
	handler := newRouterFixture().handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}
