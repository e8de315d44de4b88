package pihole

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/ports"
)

const (
	backoffBase = 50 * time.Millisecond
	backoffCap  = time.Second
)

type authRequest struct {
	Password string `json:"password"`
}

type authResponse struct {
	Session struct {
		Valid    bool    `json:"valid"`
		SID      *string `json:"sid"`
		Validity int     `json:"validity"`
		Message  string  `json:"message"`
	} `json:"session"`
}

// Session owns the session id of one endpoint. The id never leaves this type; the
// lock is held only to read or swap it.
type Session struct {
	transport *transport
	clock     ports.Clock
	logger    *slog.Logger

	mu  sync.Mutex
	sid string
}

func newSession(t *transport, clock ports.Clock, logger *slog.Logger) *Session {
	return &Session{transport: t, clock: clock, logger: logger}
}

func (s *Session) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid
}

func (s *Session) setToken(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sid = sid
}

// clearToken drops the cached id if it still equals sid.
func (s *Session) clearToken(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sid == sid {
		s.sid = ""
	}
}

func (s *Session) host() string {
	return s.transport.endpoint.Host
}

// Authenticate logs in with password, or with the configured credential when
// password is empty.
func (s *Session) Authenticate(ctx context.Context, password string) error {
	if password == "" {
		password = s.transport.endpoint.Credential
	}
	s.logger.Debug("authenticating", "host", s.host())

	req, err := jsonRequest(http.MethodPost, "/auth", authRequest{Password: password})
	if err != nil {
		return err
	}
	resp, cancel, err := s.transport.do(ctx, req, "")
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusUnauthorized && !isSuccess(resp.StatusCode) {
		return statusError(req, s.transport.url(req), resp)
	}

	var payload authResponse
	if err := decodeJSON(resp, "authenticate", &payload); err != nil {
		if resp.StatusCode == http.StatusUnauthorized {
			return &domain.AuthenticationError{Host: s.host(), Err: statusError(req, s.transport.url(req), resp)}
		}
		return err
	}
	if payload.Session.SID == nil || *payload.Session.SID == "" {
		return &domain.AuthenticationError{Host: s.host(), Err: domain.ErrNoSessionID}
	}

	s.setToken(*payload.Session.SID)
	return nil
}

// EnsureAuthenticated logs in when no session is cached, and otherwise checks the
// cached session and logs in again when the server no longer knows it.
func (s *Session) EnsureAuthenticated(ctx context.Context) error {
	sid := s.token()
	if sid == "" {
		return s.Authenticate(ctx, "")
	}

	valid, err := s.check(ctx, sid)
	if err != nil {
		return err
	}
	if valid {
		return nil
	}

	s.clearToken(sid)
	return s.Authenticate(ctx, "")
}

// check asks GET /auth whether sid is still valid, adopting a renewed id.
func (s *Session) check(ctx context.Context, sid string) (bool, error) {
	req := request{method: http.MethodGet, path: "/auth"}
	resp, cancel, err := s.transport.do(ctx, req, sid)
	if err != nil {
		return false, err
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return false, nil
	}
	if !isSuccess(resp.StatusCode) {
		return false, statusError(req, s.transport.url(req), resp)
	}

	var payload authResponse
	if err := decodeJSON(resp, "session check", &payload); err != nil {
		return false, err
	}
	if payload.Session.SID != nil && *payload.Session.SID != "" && *payload.Session.SID != sid {
		s.mu.Lock()
		if s.sid == sid {
			s.sid = *payload.Session.SID
		}
		s.mu.Unlock()
	}
	return payload.Session.Valid, nil
}

// WaitForReady retries EnsureAuthenticated with capped exponential backoff until it
// succeeds or timeout has elapsed.
func (s *Session) WaitForReady(ctx context.Context, timeout time.Duration) error {
	start := s.clock.Now()
	for attempt := 0; ; attempt++ {
		err := s.EnsureAuthenticated(ctx)
		if err == nil {
			if attempt > 0 {
				s.logger.Info("instance ready", "host", s.host(), "attempts", attempt+1)
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		waited := s.clock.Now().Sub(start)
		if waited >= timeout {
			return &domain.ReadinessTimeoutError{Host: s.host(), Waited: waited, Last: err}
		}

		delay := min(jitter(backoffDelay(attempt)), timeout-waited)
		s.logger.Debug("instance not ready", "host", s.host(), "attempt", attempt+1, "retry_in", delay, "err", err)
		if err := s.clock.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Logout invalidates the cached session. Without one it does nothing. The cache is
// cleared even when the server call fails.
func (s *Session) Logout(ctx context.Context) error {
	sid := s.token()
	if sid == "" {
		return nil
	}
	defer s.clearToken(sid)

	req := request{method: http.MethodDelete, path: "/auth"}
	resp, cancel, err := s.transport.do(ctx, req, sid)
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	switch {
	case isSuccess(resp.StatusCode), resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusGone:
		s.logger.Debug("logged out", "host", s.host())
		return nil
	default:
		return statusError(req, s.transport.url(req), resp)
	}
}

// StartKeepalive re-validates the session every interval until ctx ends or the
// server reports the session gone. It never logs in; ticks without a cached
// session are skipped.
func (s *Session) StartKeepalive(ctx context.Context, interval time.Duration) {
	go func() {
		for {
			if err := s.clock.Sleep(ctx, interval); err != nil {
				return
			}

			sid := s.token()
			if sid == "" {
				continue
			}

			valid, err := s.check(ctx, sid)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Error("session keepalive failed", "host", s.host(), "err", err)
				}
				continue
			}
			if valid {
				s.logger.Debug("session keepalive ok", "host", s.host())
				continue
			}
			if s.token() != sid {
				// Replaced or logged out by the foreground meanwhile.
				continue
			}
			s.logger.Warn("session became invalid during keepalive, stopping keepalive", "host", s.host())
			return
		}
	}()
}

// backoffDelay is min(2^attempt * 50ms, 1s).
func backoffDelay(attempt int) time.Duration {
	if attempt >= 5 {
		return backoffCap
	}
	return min(backoffBase<<attempt, backoffCap)
}

// jitter picks a delay in [d/2, d].
func jitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half+1)
}
