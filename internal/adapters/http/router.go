package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/core/ports"
	"github.com/andretaki/simurgh-sub002/internal/observability/metrics"
)

const serviceName = "api"

type Config struct {
	WebhookClientState   string
	WebhookRatePerSecond float64
	WebhookRateBurst     int
}

type Router struct {
	ingestor  ports.MailIngestor
	workflows ports.WorkflowReader
	health    ports.HealthReporter
	links     ports.LinkMaintainer
	poller    ports.PollRunner
	metrics   *metrics.HTTPServerMetrics
	cfg       Config
}

func NewRouter(
	ingestor ports.MailIngestor,
	workflows ports.WorkflowReader,
	health ports.HealthReporter,
	links ports.LinkMaintainer,
	poller ports.PollRunner,
	serverMetrics *metrics.HTTPServerMetrics,
	cfg Config,
) *Router {
	return &Router{
		ingestor:  ingestor,
		workflows: workflows,
		health:    health,
		links:     links,
		poller:    poller,
		metrics:   serverMetrics,
		cfg:       cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/v1/webhooks/mail", rateLimitMiddleware(
		http.HandlerFunc(rt.mailWebhook),
		rt.cfg.WebhookRatePerSecond,
		rt.cfg.WebhookRateBurst,
	))
	mux.HandleFunc("/v1/workflows", rt.listWorkflows)
	mux.HandleFunc("/v1/workflows/export", rt.exportWorkflows)
	mux.HandleFunc("/v1/workflows/", rt.getWorkflow)
	mux.HandleFunc("/v1/ingestion/health", rt.ingestionHealth)
	mux.HandleFunc("/v1/ingestion/poll", rt.triggerPoll)
	mux.HandleFunc("/v1/links/backfill", rt.backfillLinks)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// mailNotification is the upstream change-notification envelope. Only the
// message id and the shared clientState secret matter here.
type mailNotification struct {
	Value []struct {
		SubscriptionID string `json:"subscriptionId"`
		ClientState    string `json:"clientState"`
		ResourceData   struct {
			ID string `json:"id"`
		} `json:"resourceData"`
	} `json:"value"`
}

func (rt *Router) mailWebhook(w http.ResponseWriter, r *http.Request) {
	// Subscription handshake: echo the validation token as plain text.
	// The upstream sends it on subscription create and renew, with either verb.
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(token))
		return
	}

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var notification mailNotification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	accepted := 0
	for _, item := range notification.Value {
		if rt.cfg.WebhookClientState != "" && item.ClientState != rt.cfg.WebhookClientState {
			slog.Warn("webhook notification rejected: clientState mismatch",
				"request_id", requestIDFromContext(r.Context()),
				"subscription_id", item.SubscriptionID,
			)
			rt.recordWebhook("rejected")
			continue
		}
		messageID := strings.TrimSpace(item.ResourceData.ID)
		if messageID == "" {
			rt.recordWebhook("rejected")
			continue
		}

		outcome, err := rt.ingestor.ProcessNewEmail(r.Context(), messageID, ports.ChannelWebhook)
		if err != nil {
			slog.Error("webhook ingest failed",
				"request_id", requestIDFromContext(r.Context()),
				"message_id", messageID,
				"error", err,
			)
			rt.recordWebhook("error")
			continue
		}
		rt.recordWebhook(string(outcome))
		accepted++
	}

	// Always 202: the upstream retries non-2xx and the poll covers misses.
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

func (rt *Router) recordWebhook(outcome string) {
	if rt.metrics != nil {
		rt.metrics.RecordWebhookNotification(serviceName, outcome)
	}
}

func (rt *Router) getWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	identifier := strings.TrimPrefix(r.URL.Path, "/v1/workflows/")
	if identifier == "" || strings.Contains(identifier, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workflow identifier is required"})
		return
	}

	record, err := rt.workflows.GetWorkflow(r.Context(), identifier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) listWorkflows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query, err := parseWorkflowQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := rt.workflows.ListWorkflows(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflows": records,
		"count":     len(records),
	})
}

func (rt *Router) exportWorkflows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query, err := parseWorkflowQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	// Export is unpaged unless the caller asks otherwise.
	if r.URL.Query().Get("limit") == "" {
		query.Limit = exportListLimit
	}

	records, err := rt.workflows.ListWorkflows(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}

	filename := "workflows_" + time.Now().UTC().Format("20060102_150405") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := writeWorkflowExport(w, records); err != nil {
		slog.Error("workflow export failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
	}
}

func (rt *Router) ingestionHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	report, err := rt.health.IngestionHealth(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) triggerPoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	summary, err := rt.poller.RunPoll(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) backfillLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	resolved, err := rt.links.BackfillLegacyLinks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"resolved": resolved})
}

func parseWorkflowQuery(r *http.Request) (ports.WorkflowQuery, error) {
	query := ports.WorkflowQuery{
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return query, domain.WrapError(domain.ErrInvalidInput, "parse limit", strconv.ErrSyntax)
		}
		query.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return query, domain.WrapError(domain.ErrInvalidInput, "parse offset", strconv.ErrSyntax)
		}
		query.Offset = offset
	}
	return query, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
