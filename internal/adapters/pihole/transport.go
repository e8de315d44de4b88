package pihole

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/version"
)

const (
	sessionHeader         = "sid"
	maxJSONResponseBytes  = 16 << 20
	maxArchiveBytes       = 512 << 20
	defaultRequestTimeout = 30 * time.Second
)

// NewHTTPClient accepts any server certificate; Pi-hole installs commonly serve a
// self-signed one.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	return &http.Client{Transport: transport}
}

func UserAgent() string {
	return "pihole-sync/" + version.Version
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	// timeout overrides the default per-request timeout when positive.
	timeout time.Duration
}

func jsonRequest(method, path string, payload any) (request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return request{}, &domain.SerializationError{Op: "encode " + method + " " + path, Err: err}
	}
	return request{method: method, path: path, body: body, contentType: "application/json"}, nil
}

type transport struct {
	endpoint       domain.Endpoint
	httpClient     *http.Client
	userAgent      string
	requestTimeout time.Duration
}

func (t *transport) url(req request) string {
	target := t.endpoint.BaseURL() + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	return target
}

// do sends req with sid attached when non-empty. The caller closes the body and
// must call the returned cancel func once done reading.
func (t *transport) do(ctx context.Context, req request, sid string) (*http.Response, context.CancelFunc, error) {
	target := t.url(req)

	timeout := t.requestTimeout
	if req.timeout > 0 {
		timeout = req.timeout
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	requestCtx, cancel := context.WithTimeout(ctx, timeout)

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(requestCtx, req.method, target, body)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("create %s request: %w", req.method, err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", t.userAgent)
	if sid != "" {
		httpReq.Header.Set(sessionHeader, sid)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, &domain.TransportError{Op: req.method, URL: target, Err: err}
	}
	return resp, cancel, nil
}

type apiErrorResponse struct {
	Error struct {
		Key     string `json:"key"`
		Message string `json:"message"`
		Hint    any    `json:"hint"`
	} `json:"error"`
}

// statusError turns a non-2xx response into a TransportError carrying Pi-hole's
// error message when the body has one.
func statusError(req request, target string, resp *http.Response) error {
	transportErr := &domain.TransportError{Op: req.method, URL: target, StatusCode: resp.StatusCode}

	var payload apiErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&payload); err == nil && payload.Error.Key != "" {
		message := payload.Error.Key
		if payload.Error.Message != "" {
			message += ": " + payload.Error.Message
		}
		if hint, ok := payload.Error.Hint.(string); ok && hint != "" {
			message += " (" + hint + ")"
		}
		transportErr.Err = errors.New(message)
	}
	return transportErr
}

func decodeJSON(resp *http.Response, op string, out any) error {
	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return &domain.SerializationError{Op: "decode " + op + " response", Err: err}
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
