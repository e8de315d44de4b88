// Package fakepihole serves an in-memory subset of the Pi-hole v6 REST API for
// tests. It keeps sessions, configuration, groups, lists and a teleporter archive
// and counts the write calls it receives.
package fakepihole

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/bnema/pihole-sync/internal/domain"
)

const (
	sessionHeader = "sid"
	AppPassword   = "app-password-value"
	AppHash       = "$BALLOON-SHA256$v=1$s=1024,t=32$fake$hash"
)

// Upload is one POST /teleporter call.
type Upload struct {
	ResourceName string
	FileName     string
	Archive      []byte
	Import       map[string]any
}

type Server struct {
	*httptest.Server

	mu             sync.Mutex
	password       string
	sessions       map[string]bool
	nextSession    int
	sessionTimeout int
	config         map[string]any
	groups         []domain.Group
	lists          []domain.ListEntry
	nextGroupID    int
	nextListID     int
	archive        []byte
	uploads        []Upload
	gravityRuns    int
	logins         int
	logouts        int
	calls          map[string]int
	writes         int
	unavailable    int
	restartOnPatch int
	down           bool
	downloadBroken bool
	userAgents     map[string]struct{}
}

// New starts a server that accepts password. The server is closed with the test.
func New(t testing.TB, password string) *Server {
	t.Helper()

	s := newServer(password)
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// NewTLS is New behind a self-signed certificate.
func NewTLS(t testing.TB, password string) *Server {
	t.Helper()

	s := newServer(password)
	s.Server = httptest.NewTLSServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func newServer(password string) *Server {
	return &Server{
		password:       password,
		sessions:       make(map[string]bool),
		sessionTimeout: 1800,
		config:         map[string]any{},
		groups:         []domain.Group{{ID: 0, Name: "Default", Enabled: true, Comment: "The default group"}},
		nextGroupID:    1,
		nextListID:     1,
		calls:          make(map[string]int),
		userAgents:     make(map[string]struct{}),
	}
}

// Endpoint describes the server as a configured instance.
func (s *Server) Endpoint() domain.Endpoint {
	parsed, err := url.Parse(s.URL)
	if err != nil {
		panic(err)
	}
	host, rawPort, err := net.SplitHostPort(parsed.Host)
	if err != nil {
		panic(err)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		panic(err)
	}
	return domain.Endpoint{Scheme: parsed.Scheme, Host: host, Port: port, Credential: s.password}
}

func (s *Server) SetConfig(config map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
}

func (s *Server) Config() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMap(s.config)
}

func (s *Server) SetSessionTimeout(seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionTimeout = seconds
}

// AddGroup stores group with the next free id and returns that id.
func (s *Server) AddGroup(group domain.Group) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	group.ID = s.nextGroupID
	s.nextGroupID++
	s.groups = append(s.groups, group)
	return group.ID
}

// SetGroupEnabled flips the enabled flag of the named group.
func (s *Server) SetGroupEnabled(name string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.groups {
		if s.groups[i].Name == name {
			s.groups[i].Enabled = enabled
		}
	}
}

func (s *Server) Groups() []domain.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Group(nil), s.groups...)
}

func (s *Server) AddList(list domain.ListEntry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	list.ID = s.nextListID
	s.nextListID++
	s.lists = append(s.lists, list)
	return list.ID
}

func (s *Server) Lists() []domain.ListEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ListEntry(nil), s.lists...)
}

func (s *Server) SetArchive(archive []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archive = archive
}

func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *Server) GravityRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gravityRuns
}

func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *Server) Logouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logouts
}

// Writes counts state-changing calls outside of /auth.
func (s *Server) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Calls returns how often "METHOD /api/path" was requested.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ExpireSessions drops every session as if their validity ran out.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]bool)
}

// SetDown makes every request fail with 503 until cleared.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// SetDownloadBroken makes GET /teleporter fail with 500 until cleared.
func (s *Server) SetDownloadBroken(broken bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadBroken = broken
}

// RestartOnPatch makes the next n requests after a PATCH /config fail with 503 and
// drops all sessions, the way FTL behaves while it restarts.
func (s *Server) RestartOnPatch(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restartOnPatch = n
}

func (s *Server) UserAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.userAgents))
	for ua := range s.userAgents {
		out = append(out, ua)
	}
	return out
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth", s.handleLogin)
	mux.HandleFunc("GET /api/auth", s.handleSessionCheck)
	mux.HandleFunc("DELETE /api/auth", s.handleLogout)
	mux.HandleFunc("GET /api/auth/app", s.authed(s.handleAppPassword))
	mux.HandleFunc("GET /api/teleporter", s.authed(s.handleDownload))
	mux.HandleFunc("POST /api/teleporter", s.authed(s.handleUpload))
	mux.HandleFunc("POST /api/action/gravity", s.authed(s.handleGravity))
	mux.HandleFunc("GET /api/config", s.authed(s.handleGetConfig))
	mux.HandleFunc("GET /api/config/{path...}", s.authed(s.handleGetConfigPath))
	mux.HandleFunc("PATCH /api/config", s.authed(s.handlePatchConfig))
	mux.HandleFunc("GET /api/groups", s.authed(s.handleGetGroups))
	mux.HandleFunc("POST /api/groups", s.authed(s.handleCreateGroup))
	mux.HandleFunc("PUT /api/groups/{name}", s.authed(s.handleUpdateGroup))
	mux.HandleFunc("GET /api/lists", s.authed(s.handleGetLists))
	mux.HandleFunc("POST /api/lists", s.authed(s.handleCreateList))
	mux.HandleFunc("PUT /api/lists/{address}", s.authed(s.handleUpdateList))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		s.userAgents[r.UserAgent()] = struct{}{}
		unavailable := s.down || s.unavailable > 0
		if s.unavailable > 0 {
			s.unavailable--
		}
		s.mu.Unlock()

		if unavailable {
			http.Error(w, "FTL is restarting", http.StatusServiceUnavailable)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		ok := s.sessions[r.Header.Get(sessionHeader)]
		s.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error": map[string]any{"key": "unauthorized", "message": "Unauthorized", "hint": nil},
			})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"key": "bad_request"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if body.Password != s.password && body.Password != AppPassword {
		writeJSON(w, http.StatusUnauthorized, sessionBody(false, nil, -1, "password incorrect"))
		return
	}

	s.nextSession++
	sid := fmt.Sprintf("sid-%d", s.nextSession)
	s.sessions[sid] = true
	s.logins++
	writeJSON(w, http.StatusOK, sessionBody(true, &sid, s.sessionTimeout, "password correct"))
}

func (s *Server) handleSessionCheck(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(sessionHeader)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sessions[sid] {
		writeJSON(w, http.StatusUnauthorized, sessionBody(false, nil, -1, "no valid session"))
		return
	}
	writeJSON(w, http.StatusOK, sessionBody(true, &sid, s.sessionTimeout, "correct session"))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(sessionHeader)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sessions[sid] {
		writeJSON(w, http.StatusUnauthorized, sessionBody(false, nil, -1, "no valid session"))
		return
	}
	delete(s.sessions, sid)
	s.logouts++
	w.WriteHeader(http.StatusGone)
}

func (s *Server) handleAppPassword(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app": map[string]any{"password": AppPassword, "hash": AppHash},
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	archive := append([]byte(nil), s.archive...)
	broken := s.downloadBroken
	s.mu.Unlock()

	if broken {
		http.Error(w, "teleporter export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="pi-hole_teleporter.zip"`)
	_, _ = w.Write(archive)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"key": "bad_request", "message": err.Error()}})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"key": "bad_request", "message": "no file"}})
		return
	}
	defer func() { _ = file.Close() }()
	archive, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"key": "bad_request", "message": err.Error()}})
		return
	}

	upload := Upload{
		ResourceName: r.FormValue("resourceName"),
		FileName:     header.Filename,
		Archive:      archive,
	}
	if raw := r.FormValue("import"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &upload.Import); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"key": "bad_request", "message": "invalid import"}})
			return
		}
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, upload)
	s.writes++
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"files": []string{"etc/pihole/pihole.toml", "etc/pihole/gravity.db->group"},
		"took":  0.01,
	})
}

func (s *Server) handleGravity(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.gravityRuns++
	s.writes++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, "  [i] Neutrino emissions detected...\n  [✓] Done.\n")
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"config": s.Config()})
}

func (s *Server) handleGetConfigPath(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.PathValue("path"), "/"), "/")

	s.mu.Lock()
	var value any = cloneMap(s.config)
	if len(parts) == 3 && parts[0] == "webserver" && parts[1] == "session" && parts[2] == "timeout" {
		value = map[string]any{"webserver": map[string]any{"session": map[string]any{"timeout": s.sessionTimeout}}}
	}
	s.mu.Unlock()

	// Walk down and rebuild the nesting, as Pi-hole answers sub-paths.
	current := value
	for _, part := range parts {
		object, ok := current.(map[string]any)
		if !ok {
			current = nil
			break
		}
		current = object[part]
	}
	if current == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"key": "bad_request", "message": "config item does not exist"}})
		return
	}
	for i := len(parts) - 1; i >= 0; i-- {
		current = map[string]any{parts[i]: current}
	}
	writeJSON(w, http.StatusOK, map[string]any{"config": current})
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Config map[string]any `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Config == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"key": "bad_request", "message": "invalid config"}})
		return
	}

	s.mu.Lock()
	deepMerge(s.config, body.Config)
	s.writes++
	if s.restartOnPatch > 0 {
		s.unavailable = s.restartOnPatch
		s.sessions = make(map[string]bool)
	}
	config := cloneMap(s.config)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"config": config})
}

type wireGroup struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Comment *string `json:"comment"`
	Enabled bool    `json:"enabled"`
}

func (s *Server) handleGetGroups(w http.ResponseWriter, _ *http.Request) {
	groups := s.Groups()
	out := make([]wireGroup, 0, len(groups))
	for _, group := range groups {
		out = append(out, wireGroup{ID: group.ID, Name: group.Name, Comment: nullable(group.Comment), Enabled: group.Enabled})
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var body wireGroup
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"key": "bad_request", "message": "invalid group"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.groups {
		if existing.Name == body.Name {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"key": "database_error", "message": "UNIQUE constraint failed: group.name"}})
			return
		}
	}
	group := domain.Group{ID: s.nextGroupID, Name: body.Name, Comment: deref(body.Comment), Enabled: body.Enabled}
	s.nextGroupID++
	s.groups = append(s.groups, group)
	s.writes++
	writeJSON(w, http.StatusCreated, map[string]any{"groups": []wireGroup{{ID: group.ID, Name: group.Name, Comment: body.Comment, Enabled: group.Enabled}}})
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body wireGroup
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"key": "bad_request", "message": "invalid group"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.groups {
		if existing.Name != name {
			continue
		}
		if body.Name != "" {
			s.groups[i].Name = body.Name
		}
		s.groups[i].Comment = deref(body.Comment)
		s.groups[i].Enabled = body.Enabled
		s.writes++
		writeJSON(w, http.StatusOK, map[string]any{"groups": []wireGroup{{ID: existing.ID, Name: s.groups[i].Name, Comment: body.Comment, Enabled: body.Enabled}}})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"key": "not_found", "message": "group not found"}})
}

type wireList struct {
	ID      int     `json:"id"`
	Address string  `json:"address"`
	Type    string  `json:"type"`
	Comment *string `json:"comment"`
	Groups  []int   `json:"groups"`
	Enabled bool    `json:"enabled"`
}

func (s *Server) handleGetLists(w http.ResponseWriter, _ *http.Request) {
	lists := s.Lists()
	out := make([]wireList, 0, len(lists))
	for _, list := range lists {
		groups := list.Groups
		if groups == nil {
			groups = []int{}
		}
		out = append(out, wireList{ID: list.ID, Address: list.Address, Type: list.Type, Comment: nullable(list.Comment), Groups: groups, Enabled: list.Enabled})
	}
	writeJSON(w, http.StatusOK, map[string]any{"lists": out})
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	listType := r.URL.Query().Get("type")
	var body wireList
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Address == "" || (listType != "allow" && listType != "block") {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"key": "bad_request", "message": "invalid list"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := domain.ListEntry{ID: s.nextListID, Address: body.Address, Type: listType, Comment: deref(body.Comment), Enabled: body.Enabled, Groups: body.Groups}
	s.nextListID++
	s.lists = append(s.lists, list)
	s.writes++
	writeJSON(w, http.StatusCreated, map[string]any{"lists": []wireList{{ID: list.ID, Address: list.Address, Type: list.Type, Comment: body.Comment, Groups: list.Groups, Enabled: list.Enabled}}})
}

func (s *Server) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	listType := r.URL.Query().Get("type")
	var body wireList
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"key": "bad_request", "message": "invalid list"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.lists {
		if existing.Address != address || existing.Type != listType {
			continue
		}
		s.lists[i].Comment = deref(body.Comment)
		s.lists[i].Enabled = body.Enabled
		s.lists[i].Groups = body.Groups
		if body.Type != "" {
			s.lists[i].Type = body.Type
		}
		s.writes++
		writeJSON(w, http.StatusOK, map[string]any{"lists": []wireList{{ID: existing.ID, Address: address, Type: s.lists[i].Type, Comment: body.Comment, Groups: body.Groups, Enabled: body.Enabled}}})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"key": "not_found", "message": "list not found"}})
}

func sessionBody(valid bool, sid *string, validity int, message string) map[string]any {
	var sidValue any
	if sid != nil {
		sidValue = *sid
	}
	return map[string]any{
		"session": map[string]any{
			"valid":    valid,
			"totp":     false,
			"sid":      sidValue,
			"validity": validity,
			"message":  message,
		},
		"took": 0.001,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func deepMerge(dst, src map[string]any) {
	for key, value := range src {
		srcObject, srcIsObject := value.(map[string]any)
		dstObject, dstIsObject := dst[key].(map[string]any)
		if srcIsObject && dstIsObject {
			deepMerge(dstObject, srcObject)
			continue
		}
		dst[key] = value
	}
}

func cloneMap(in map[string]any) map[string]any {
	encoded, err := json.Marshal(in)
	if err != nil {
		panic(err)
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		panic(err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
