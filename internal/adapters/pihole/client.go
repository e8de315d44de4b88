// Package pihole talks to the Pi-hole v6 REST API.
package pihole

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/ports"
)

const (
	// ArchiveName is the file name Pi-hole expects for teleporter uploads.
	ArchiveName = "pihole_backup.zip"
	// KeepaliveMargin is subtracted from the session timeout to get the keepalive period.
	KeepaliveMargin = 30 * time.Second

	transferTimeout = 5 * time.Minute
)

var _ ports.Instance = (*Client)(nil)

type Options struct {
	HTTPClient     *http.Client
	Clock          ports.Clock
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// Client is one Pi-hole instance. Every call made through it shares one Session.
type Client struct {
	endpoint  domain.Endpoint
	transport *transport
	session   *Session
	logger    *slog.Logger
}

func NewClient(endpoint domain.Endpoint, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient()
	}
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	t := &transport{
		endpoint:       endpoint,
		httpClient:     opts.HTTPClient,
		userAgent:      UserAgent(),
		requestTimeout: opts.RequestTimeout,
	}
	return &Client{
		endpoint:  endpoint,
		transport: t,
		session:   newSession(t, opts.Clock, opts.Logger),
		logger:    opts.Logger,
	}
}

func (c *Client) Endpoint() domain.Endpoint {
	return c.endpoint
}

func (c *Client) Session() *Session {
	return c.session
}

func (c *Client) EnsureAuthenticated(ctx context.Context) error {
	return c.session.EnsureAuthenticated(ctx)
}

func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return c.session.WaitForReady(ctx, timeout)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// call sends an authenticated request. A 401 drops the session and the request is
// retried once with a fresh one. Non-2xx answers become errors.
func (c *Client) call(ctx context.Context, req request) (*http.Response, context.CancelFunc, error) {
	for attempt := 0; ; attempt++ {
		if err := c.session.EnsureAuthenticated(ctx); err != nil {
			return nil, nil, err
		}

		sid := c.session.token()
		resp, cancel, err := c.transport.do(ctx, req, sid)
		if err != nil {
			return nil, nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxJSONResponseBytes))
			_ = resp.Body.Close()
			cancel()
			c.session.clearToken(sid)
			c.logger.Debug("session rejected, re-authenticating", "host", c.endpoint.Host, "path", req.path)
			continue
		}
		if !isSuccess(resp.StatusCode) {
			err := statusError(req, c.transport.url(req), resp)
			_ = resp.Body.Close()
			cancel()
			if resp.StatusCode == http.StatusUnauthorized {
				return nil, nil, &domain.AuthenticationError{Host: c.endpoint.Host, Err: err}
			}
			return nil, nil, err
		}
		return resp, cancel, nil
	}
}

// callJSON sends req and decodes a JSON answer into out when out is non-nil.
func (c *Client) callJSON(ctx context.Context, req request, op string, out any) error {
	resp, cancel, err := c.call(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxJSONResponseBytes))
		return nil
	}
	if err := decodeJSON(resp, op, out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// AppPassword logs in with the web password and asks Pi-hole for a new application
// password. The session stays open; callers log out.
func (c *Client) AppPassword(ctx context.Context, password string) (domain.AppPassword, error) {
	if err := c.session.Authenticate(ctx, password); err != nil {
		return domain.AppPassword{}, err
	}

	req := request{method: http.MethodGet, path: "/auth/app"}
	resp, cancel, err := c.transport.do(ctx, req, c.session.token())
	if err != nil {
		return domain.AppPassword{}, fmt.Errorf("fetch app password: %w", err)
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return domain.AppPassword{}, fmt.Errorf("fetch app password: %w", statusError(req, c.transport.url(req), resp))
	}

	var payload struct {
		App struct {
			Password string `json:"password"`
			Hash     string `json:"hash"`
		} `json:"app"`
	}
	if err := decodeJSON(resp, "app password", &payload); err != nil {
		return domain.AppPassword{}, fmt.Errorf("fetch app password: %w", err)
	}
	return domain.AppPassword{Password: payload.App.Password, Hash: payload.App.Hash}, nil
}

func (c *Client) DownloadSnapshot(ctx context.Context) ([]byte, error) {
	resp, cancel, err := c.call(ctx, request{method: http.MethodGet, path: "/teleporter", timeout: transferTimeout})
	if err != nil {
		return nil, fmt.Errorf("download teleporter archive: %w", err)
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	archive, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveBytes))
	if err != nil {
		return nil, fmt.Errorf("download teleporter archive: %w", &domain.TransportError{Op: http.MethodGet, URL: c.endpoint.BaseURL() + "/teleporter", Err: err})
	}
	return archive, nil
}

// UploadSnapshot imports archive and returns the files Pi-hole reports as
// processed. opts is sent as the "import" part when non-nil.
func (c *Client) UploadSnapshot(ctx context.Context, archive []byte, opts *domain.SnapshotOptions) ([]string, error) {
	body, contentType, err := teleporterForm(archive, opts)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Files []string `json:"files"`
	}
	req := request{method: http.MethodPost, path: "/teleporter", body: body, contentType: contentType, timeout: transferTimeout}
	if err := c.callJSON(ctx, req, "upload teleporter archive", &payload); err != nil {
		return nil, err
	}
	return payload.Files, nil
}

func teleporterForm(archive []byte, opts *domain.SnapshotOptions) ([]byte, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := form.WriteField("resourceName", ArchiveName); err != nil {
		return nil, "", fmt.Errorf("build teleporter form: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, ArchiveName))
	header.Set("Content-Type", "application/zip")
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("build teleporter form: %w", err)
	}
	if _, err := part.Write(archive); err != nil {
		return nil, "", fmt.Errorf("build teleporter form: %w", err)
	}

	if opts != nil {
		encoded, err := json.Marshal(opts)
		if err != nil {
			return nil, "", &domain.SerializationError{Op: "encode teleporter import options", Err: err}
		}
		if err := form.WriteField("import", string(encoded)); err != nil {
			return nil, "", fmt.Errorf("build teleporter form: %w", err)
		}
	}

	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("build teleporter form: %w", err)
	}
	return buf.Bytes(), form.FormDataContentType(), nil
}

// TriggerGravity starts a gravity run. Pi-hole streams the run log back; it is
// discarded.
func (c *Client) TriggerGravity(ctx context.Context) error {
	resp, cancel, err := c.call(ctx, request{method: http.MethodPost, path: "/action/gravity", timeout: transferTimeout})
	if err != nil {
		return fmt.Errorf("trigger gravity: %w", err)
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) Config(ctx context.Context) (any, error) {
	var payload map[string]any
	if err := c.callJSON(ctx, request{method: http.MethodGet, path: "/config"}, "get config", &payload); err != nil {
		return nil, err
	}
	config, ok := payload["config"]
	if !ok {
		return nil, &domain.SerializationError{Op: "get config", Err: fmt.Errorf("response has no config field")}
	}
	return config, nil
}

// PatchConfig merges config into the instance configuration. Pi-hole may restart
// FTL afterwards.
func (c *Client) PatchConfig(ctx context.Context, config any) error {
	req, err := jsonRequest(http.MethodPatch, "/config", map[string]any{"config": config})
	if err != nil {
		return err
	}
	return c.callJSON(ctx, req, "patch config", nil)
}

// SessionTimeout reads webserver.session.timeout. Zero means unknown.
func (c *Client) SessionTimeout(ctx context.Context) (time.Duration, error) {
	var payload struct {
		Config struct {
			Webserver struct {
				Session struct {
					Timeout json.Number `json:"timeout"`
				} `json:"session"`
			} `json:"webserver"`
		} `json:"config"`
	}
	if err := c.callJSON(ctx, request{method: http.MethodGet, path: "/config/webserver/session/timeout"}, "get session timeout", &payload); err != nil {
		return 0, err
	}

	seconds, err := strconv.ParseInt(payload.Config.Webserver.Session.Timeout.String(), 10, 64)
	if err != nil || seconds <= 0 {
		return 0, nil
	}
	return time.Duration(seconds) * time.Second, nil
}

// InitKeepalive starts a session keepalive when the instance's session timeout is
// shorter than syncInterval.
func (c *Client) InitKeepalive(ctx context.Context, syncInterval time.Duration) error {
	timeout, err := c.SessionTimeout(ctx)
	if err != nil {
		return err
	}
	if timeout == 0 {
		c.logger.Warn("could not read session timeout, not starting keepalive", "host", c.endpoint.Host)
		return nil
	}
	if timeout >= syncInterval {
		return nil
	}

	period := timeout - KeepaliveMargin
	if period <= 0 {
		period = timeout / 2
	}
	c.logger.Info("sync interval exceeds session timeout, starting keepalive",
		"host", c.endpoint.Host, "session_timeout", timeout, "keepalive_every", period)
	c.session.StartKeepalive(ctx, period)
	return nil
}

type groupPayload struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
	Enabled bool   `json:"enabled"`
}

type groupRecord struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Comment *string `json:"comment"`
	Enabled bool    `json:"enabled"`
}

func (c *Client) Groups(ctx context.Context) ([]domain.Group, error) {
	var payload struct {
		Groups []groupRecord `json:"groups"`
	}
	if err := c.callJSON(ctx, request{method: http.MethodGet, path: "/groups"}, "list groups", &payload); err != nil {
		return nil, err
	}

	groups := make([]domain.Group, 0, len(payload.Groups))
	for _, record := range payload.Groups {
		groups = append(groups, domain.Group{
			ID:      record.ID,
			Name:    record.Name,
			Comment: derefString(record.Comment),
			Enabled: record.Enabled,
		})
	}
	return groups, nil
}

func (c *Client) CreateGroup(ctx context.Context, group domain.Group) error {
	req, err := jsonRequest(http.MethodPost, "/groups", groupPayload{Name: group.Name, Comment: group.Comment, Enabled: group.Enabled})
	if err != nil {
		return err
	}
	return c.callJSON(ctx, req, "create group", nil)
}

func (c *Client) UpdateGroup(ctx context.Context, name string, group domain.Group) error {
	req, err := jsonRequest(http.MethodPut, "/groups/"+url.PathEscape(name), groupPayload{Name: group.Name, Comment: group.Comment, Enabled: group.Enabled})
	if err != nil {
		return err
	}
	return c.callJSON(ctx, req, "update group", nil)
}

type listRecord struct {
	ID      int     `json:"id"`
	Address string  `json:"address"`
	Type    string  `json:"type"`
	Comment *string `json:"comment"`
	Groups  []int   `json:"groups"`
	Enabled bool    `json:"enabled"`
}

type createListPayload struct {
	Address string `json:"address"`
	Comment string `json:"comment"`
	Groups  []int  `json:"groups"`
	Enabled bool   `json:"enabled"`
}

type updateListPayload struct {
	Comment string `json:"comment"`
	Type    string `json:"type"`
	Groups  []int  `json:"groups"`
	Enabled bool   `json:"enabled"`
}

func (c *Client) Lists(ctx context.Context) ([]domain.ListEntry, error) {
	var payload struct {
		Lists []listRecord `json:"lists"`
	}
	if err := c.callJSON(ctx, request{method: http.MethodGet, path: "/lists"}, "list lists", &payload); err != nil {
		return nil, err
	}

	lists := make([]domain.ListEntry, 0, len(payload.Lists))
	for _, record := range payload.Lists {
		lists = append(lists, domain.ListEntry{
			ID:      record.ID,
			Address: record.Address,
			Type:    record.Type,
			Comment: derefString(record.Comment),
			Enabled: record.Enabled,
			Groups:  record.Groups,
		})
	}
	return lists, nil
}

func (c *Client) CreateList(ctx context.Context, list domain.ListEntry) error {
	req, err := jsonRequest(http.MethodPost, "/lists", createListPayload{
		Address: list.Address,
		Comment: list.Comment,
		Groups:  groupsOrDefault(list.Groups),
		Enabled: list.Enabled,
	})
	if err != nil {
		return err
	}
	req.query = url.Values{"type": {list.Type}}
	return c.callJSON(ctx, req, "create list", nil)
}

func (c *Client) UpdateList(ctx context.Context, list domain.ListEntry) error {
	req, err := jsonRequest(http.MethodPut, "/lists/"+url.PathEscape(list.Address), updateListPayload{
		Comment: list.Comment,
		Type:    list.Type,
		Groups:  groupsOrDefault(list.Groups),
		Enabled: list.Enabled,
	})
	if err != nil {
		return err
	}
	req.query = url.Values{"type": {list.Type}}
	return c.callJSON(ctx, req, "update list", nil)
}

func groupsOrDefault(groups []int) []int {
	if len(groups) == 0 {
		return []int{domain.DefaultGroupID}
	}
	return groups
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
