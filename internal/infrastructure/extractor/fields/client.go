package fields

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/infrastructure/resilience"
)

// Client calls the external AI field-extraction service. Extraction
// rejections (the service understood the document and could not extract)
// come back as domain.ErrExtraction; upstream trouble as
// domain.ErrTemporary.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	executor *resilience.Executor
}

func New(baseURL, apiKey string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 120 * time.Second,
		},
		executor: executor,
	}
}

type extractRequest struct {
	DocumentKind string `json:"document_kind"`
	Text         string `json:"text"`
}

type extractResponse struct {
	SolicitationNumber string            `json:"solicitation_number"`
	OrderNumber        string            `json:"order_number"`
	DueDate            *time.Time        `json:"due_date"`
	Fields             map[string]string `json:"fields"`
	Error              string            `json:"error"`
}

func (c *Client) ExtractFields(ctx context.Context, kind domain.DocumentKind, text string) (domain.ExtractedFields, error) {
	payload, err := json.Marshal(extractRequest{
		DocumentKind: string(kind),
		Text:         text,
	})
	if err != nil {
		return domain.ExtractedFields{}, fmt.Errorf("marshal extract request: %w", err)
	}

	var out domain.ExtractedFields
	call := func(callCtx context.Context) error {
		result, err := c.post(callCtx, payload)
		if err != nil {
			return err
		}
		out = result
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, "extractor.fields", call, classifyExtractorError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.ExtractedFields{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, payload []byte) (domain.ExtractedFields, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return domain.ExtractedFields{}, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ExtractedFields{}, domain.WrapError(domain.ErrTemporary, "call extractor", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.ExtractedFields{}, domain.WrapError(domain.ErrTemporary, "read extractor response", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return domain.ExtractedFields{}, domain.WrapError(domain.ErrTemporary, "extractor",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body)))
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return domain.ExtractedFields{}, domain.WrapError(domain.ErrExtraction, "extractor",
			fmt.Errorf("document rejected: %s", truncate(body)))
	case resp.StatusCode != http.StatusOK:
		return domain.ExtractedFields{}, fmt.Errorf("extractor status %d: %s", resp.StatusCode, truncate(body))
	}

	var parsed extractResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.ExtractedFields{}, fmt.Errorf("decode extractor response: %w", err)
	}
	if parsed.Error != "" {
		return domain.ExtractedFields{}, domain.WrapError(domain.ErrExtraction, "extractor", errors.New(parsed.Error))
	}

	return domain.ExtractedFields{
		SolicitationNumber: parsed.SolicitationNumber,
		OrderNumber:        parsed.OrderNumber,
		DueDate:            parsed.DueDate,
		Raw:                parsed.Fields,
	}, nil
}

func classifyExtractorError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	// Extraction rejections are the document's fault, not the service's.
	if domain.IsKind(err, domain.ErrExtraction) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	var netErr net.Error
	if domain.IsKind(err, domain.ErrTemporary) || errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
