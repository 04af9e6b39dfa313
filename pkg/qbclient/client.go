// qbclient/client.go
package qbclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eGGnogSC/qbsync/config"
	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	apiCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qbsync_quickbooks_api_calls_total",
		Help: "QuickBooks API calls by entity, method and outcome",
	}, []string{"entity", "method", "outcome"})

	apiCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qbsync_quickbooks_api_call_duration_seconds",
		Help:    "QuickBooks API call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity", "method"})
)

// TokenProvider hands out a valid access token for a user's connection
type TokenProvider interface {
	GetValidAccessToken(ctx context.Context, userID uint) (*auth.AccessToken, error)
}

// Client is the QuickBooks accounting API client
type Client struct {
	cfg        config.QuickBooksConfig
	tokens     TokenProvider
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// NewClient creates a new QuickBooks API client
func NewClient(cfg config.QuickBooksConfig, tokens TokenProvider, logger logrus.FieldLogger) *Client {
	return &Client{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// WithHTTPClient replaces the transport, mainly for tests
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	client := *c
	client.httpClient = hc
	return &client
}

// Call makes an authenticated request against the user's company. endpoint is
// the path below /v3/company/{realmId}/ and may carry its own query string.
// The decoded body is returned on success; Fault envelopes become *Error even
// when they arrive with a 2xx status.
func (c *Client) Call(ctx context.Context, userID uint, method, endpoint string, body any) (json.RawMessage, error) {
	entity := metricEntity(endpoint)
	timer := prometheus.NewTimer(apiCallDuration.WithLabelValues(entity, method))
	defer timer.ObserveDuration()

	raw, err := c.call(ctx, userID, method, endpoint, body)
	outcome := "success"
	if err != nil {
		outcome = "error"
		if qbErr, ok := err.(*Error); ok {
			outcome = qbErr.Kind.String()
		}
	}
	apiCallsTotal.WithLabelValues(entity, method, outcome).Inc()
	return raw, err
}

func (c *Client) call(ctx context.Context, userID uint, method, endpoint string, body any) (json.RawMessage, error) {
	if c.tokens == nil {
		return nil, &Error{Kind: KindAuth, Message: "QuickBooks is not configured", Err: auth.ErrNotConfigured}
	}
	token, err := c.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Message: "no valid access token", Err: err}
	}

	reqURL, err := c.buildURL(token, endpoint)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "invalid endpoint", Err: err}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindTransport, Message: "failed to encode request", Err: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if fault := parseFault(respBody, resp.StatusCode); fault != nil {
		c.logger.WithFields(logrus.Fields{
			"user_id":  userID,
			"endpoint": endpoint,
			"status":   resp.StatusCode,
			"code":     fault.Code,
		}).Warn("QuickBooks returned a fault")
		return nil, fault
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{
			Kind:       KindTransport,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("QuickBooks API returned status %d: %s", resp.StatusCode, Truncate(string(respBody), 500)),
		}
	}

	if !json.Valid(respBody) {
		return nil, &Error{Kind: KindTransport, StatusCode: resp.StatusCode, Message: "response is not JSON"}
	}
	return respBody, nil
}

func (c *Client) buildURL(token *auth.AccessToken, endpoint string) (string, error) {
	base := strings.TrimRight(c.cfg.APIBaseURL(token.Environment), "/")
	u, err := url.Parse(fmt.Sprintf("%s/v3/company/%s/%s", base, url.PathEscape(token.RealmID), strings.TrimLeft(endpoint, "/")))
	if err != nil {
		return "", err
	}
	q := u.Query()
	if c.cfg.MinorVersion != "" {
		q.Set("minorversion", c.cfg.MinorVersion)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Query runs a QuickBooks query statement and decodes the matching entities
func Query[T any](ctx context.Context, c *Client, userID uint, statement string) ([]T, error) {
	raw, err := c.Call(ctx, userID, http.MethodGet, "query?query="+url.QueryEscape(statement), nil)
	if err != nil {
		return nil, err
	}
	list, err := UnwrapQueryResponse(raw)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "unexpected query response", Err: err}
	}
	if list == nil {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(list, &out); err != nil {
		return nil, &Error{Kind: KindTransport, Message: "failed to decode query results", Err: err}
	}
	return out, nil
}

// Get reads one entity by id
func Get[T any](ctx context.Context, c *Client, userID uint, entity, id string) (*T, error) {
	raw, err := c.Call(ctx, userID, http.MethodGet, strings.ToLower(entity)+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return decodeEntity[T](raw, entity)
}

// Create posts a new entity
func Create[T any](ctx context.Context, c *Client, userID uint, entity string, payload any) (*T, error) {
	raw, err := c.Call(ctx, userID, http.MethodPost, strings.ToLower(entity), payload)
	if err != nil {
		return nil, err
	}
	return decodeEntity[T](raw, entity)
}

// Update posts a sparse update. payload must carry Id, SyncToken and sparse=true.
func Update[T any](ctx context.Context, c *Client, userID uint, entity string, payload any) (*T, error) {
	return Create[T](ctx, c, userID, entity, payload)
}

// Delete removes an entity at the given SyncToken
func (c *Client) Delete(ctx context.Context, userID uint, entity, id, syncToken string) error {
	payload := map[string]string{"Id": id, "SyncToken": syncToken}
	_, err := c.Call(ctx, userID, http.MethodPost, strings.ToLower(entity)+"?operation=delete", payload)
	return err
}

func decodeEntity[T any](raw json.RawMessage, entity string) (*T, error) {
	obj, err := unwrapEntity(raw, entity)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "unexpected response shape", Err: err}
	}
	var out T
	if err := json.Unmarshal(obj, &out); err != nil {
		return nil, &Error{Kind: KindTransport, Message: "failed to decode " + entity, Err: err}
	}
	return &out, nil
}

func metricEntity(endpoint string) string {
	e := endpoint
	if i := strings.IndexAny(e, "/?"); i >= 0 {
		e = e[:i]
	}
	return e
}
