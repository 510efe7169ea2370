package graph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/core/ports"
	"github.com/andretaki/simurgh-sub002/internal/infrastructure/resilience"
)

// Client talks to the Microsoft Graph mail API for one mailbox using
// client-credential auth. It is the only code that knows the upstream mail
// system's shape; everything else sees the MailClient port.
type Client struct {
	cfg      Config
	http     *http.Client
	executor *resilience.Executor

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Mailbox      string

	// BaseURL and TokenURL are overridable for tests; empty means the real
	// Graph endpoints.
	BaseURL  string
	TokenURL string
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: 60 * time.Second},
		executor: executor,
	}
}

type listResponse struct {
	Value []struct {
		ID               string    `json:"id"`
		ReceivedDateTime time.Time `json:"receivedDateTime"`
	} `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

func (c *Client) ListMessagesSince(ctx context.Context, since time.Time) ([]ports.MailMessageRef, error) {
	endpoint := fmt.Sprintf(
		"%s/users/%s/messages?$filter=receivedDateTime ge %s&$select=id,receivedDateTime&$orderby=receivedDateTime asc&$top=100",
		c.cfg.BaseURL,
		url.PathEscape(c.cfg.Mailbox),
		since.UTC().Format(time.RFC3339),
	)

	var refs []ports.MailMessageRef
	for endpoint != "" {
		var page listResponse
		if err := c.get(ctx, "graph.list_messages", endpoint, &page); err != nil {
			return nil, err
		}
		for _, m := range page.Value {
			refs = append(refs, ports.MailMessageRef{ID: m.ID, ReceivedAt: m.ReceivedDateTime})
		}
		endpoint = page.NextLink
	}
	return refs, nil
}

type messageResponse struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	From             struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	Attachments []struct {
		Name         string `json:"name"`
		ContentType  string `json:"contentType"`
		ContentBytes string `json:"contentBytes"`
	} `json:"attachments"`
}

func (c *Client) GetMessage(ctx context.Context, messageID string) (*ports.MailMessage, error) {
	endpoint := fmt.Sprintf(
		"%s/users/%s/messages/%s?$expand=attachments",
		c.cfg.BaseURL,
		url.PathEscape(c.cfg.Mailbox),
		url.PathEscape(messageID),
	)

	var parsed messageResponse
	if err := c.get(ctx, "graph.get_message", endpoint, &parsed); err != nil {
		return nil, err
	}

	msg := &ports.MailMessage{
		ID:         parsed.ID,
		Sender:     parsed.From.EmailAddress.Address,
		Subject:    parsed.Subject,
		ReceivedAt: parsed.ReceivedDateTime,
	}
	for _, a := range parsed.Attachments {
		content, err := base64.StdEncoding.DecodeString(a.ContentBytes)
		if err != nil {
			return nil, fmt.Errorf("decode attachment %q: %w", a.Name, err)
		}
		msg.Attachments = append(msg.Attachments, ports.MailAttachment{
			Name:        a.Name,
			ContentType: a.ContentType,
			Content:     content,
		})
	}
	return msg, nil
}

func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	endpoint := fmt.Sprintf(
		"%s/users/%s/messages/%s",
		c.cfg.BaseURL,
		url.PathEscape(c.cfg.Mailbox),
		url.PathEscape(messageID),
	)

	call := func(callCtx context.Context) error {
		body := strings.NewReader(`{"isRead": true}`)
		req, err := http.NewRequestWithContext(callCtx, http.MethodPatch, endpoint, body)
		if err != nil {
			return fmt.Errorf("build mark-read request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.send(callCtx, req, nil)
	}
	return c.execute(ctx, "graph.mark_read", call)
}

func (c *Client) get(ctx context.Context, operation, endpoint string, out any) error {
	call := func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build graph request: %w", err)
		}
		return c.send(callCtx, req, out)
	}
	return c.execute(ctx, operation, call)
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.executor != nil {
		return c.executor.Execute(ctx, operation, call, classifyGraphError)
	}
	return call(ctx)
}

func (c *Client) send(ctx context.Context, req *http.Request, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "call graph", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "read graph response", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.WrapError(domain.ErrNotFound, "graph", fmt.Errorf("status 404: %s", req.URL.Path))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.WrapError(domain.ErrTemporary, "graph", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return fmt.Errorf("graph status %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "acquire graph token", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domain.WrapError(domain.ErrTemporary, "acquire graph token", fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	c.accessToken = parsed.AccessToken
	// Refresh a minute early to dodge clock skew.
	c.tokenExpiry = time.Now().Add(time.Duration(parsed.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

func classifyGraphError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if domain.IsKind(err, domain.ErrNotFound) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	var netErr net.Error
	if domain.IsKind(err, domain.ErrTemporary) || errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
