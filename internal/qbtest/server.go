// Package qbtest provides fixtures for exercising the sync layer against a fake
// QuickBooks company and an in-memory database.
package qbtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
	RealmID      = "9130350000000001"
)

// Call is one request the fake server received
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Entity returns the lower-case entity segment of an accounting API path, or
// "query" for query calls. OAuth calls return "".
func (c Call) Entity() string {
	parts := strings.Split(strings.Trim(c.Path, "/"), "/")
	if len(parts) < 4 || parts[0] != "v3" {
		return ""
	}
	return parts[3]
}

type failure struct {
	method string
	entity string
	status int
	body   string
	once   bool
	skip   int
}

// Server is a fake QuickBooks OAuth and accounting API
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	mux           *http.ServeMux
	seq           int
	objects       map[string]map[string]map[string]any
	calls         []Call
	failures      []*failure
	accessTokens  map[string]bool
	refreshTokens map[string]bool
	tokenGrants   []string
	revoked       []string
	refreshError  string
}

// NewServer starts a fake server that is closed when the test ends
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		mux:           http.NewServeMux(),
		objects:       make(map[string]map[string]map[string]any),
		accessTokens:  make(map[string]bool),
		refreshTokens: make(map[string]bool),
	}
	s.mux.HandleFunc("POST /oauth2/v1/tokens/bearer", s.handleToken)
	s.mux.HandleFunc("POST /oauth2/v1/tokens/revoke", s.handleRevoke)
	s.mux.HandleFunc("GET /v3/company/{realm}/query", s.authorized(s.handleQuery))
	s.mux.HandleFunc("GET /v3/company/{realm}/{entity}/{id}", s.authorized(s.handleGet))
	s.mux.HandleFunc("POST /v3/company/{realm}/{entity}", s.authorized(s.handlePost))

	s.Server = httptest.NewServer(s)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	call := Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Body: body}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	f := s.takeFailure(call)
	s.mu.Unlock()

	if f != nil {
		w.WriteHeader(f.status)
		io.WriteString(w, f.body)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// FailNext makes the next request for entity ("customer", "invoice", "payment",
// "query") with the given method return status and body
func (s *Server) FailNext(method, entity string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, entity: entity, status: status, body: body, once: true})
}

// FailNth lets n-1 matching requests through and fails the nth
func (s *Server) FailNth(method, entity string, n, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, entity: entity, status: status, body: body, once: true, skip: n - 1})
}

// FailAlways makes every matching request fail
func (s *Server) FailAlways(method, entity string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, entity: entity, status: status, body: body})
}

// RejectRefresh makes refresh grants fail with the given OAuth error code
func (s *Server) RejectRefresh(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshError = code
}

func (s *Server) takeFailure(call Call) *failure {
	for i, f := range s.failures {
		if f.method != call.Method || f.entity != call.Entity() {
			continue
		}
		if f.skip > 0 {
			f.skip--
			continue
		}
		if f.once {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
		}
		return f
	}
	return nil
}

// FaultBody renders a QuickBooks Fault envelope
func FaultBody(code, message string) string {
	return fmt.Sprintf(`{"Fault":{"Error":[{"Message":%q,"Detail":%q,"code":%q}],"type":"ValidationFault"},"time":%q}`,
		message, message+" detail", code, time.Now().Format(time.RFC3339))
}

// RegisterTokens makes an access and refresh token pair valid
func (s *Server) RegisterTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens[access] = true
	s.refreshTokens[refresh] = true
}

// Calls returns every request received so far
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// APICalls returns accounting API requests, optionally filtered by method and entity
func (s *Server) APICalls(method, entity string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Entity() == "" {
			continue
		}
		if method != "" && c.Method != method {
			continue
		}
		if entity != "" && c.Entity() != entity {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ResetCalls clears the request log
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// TokenGrants lists the grant_type of every token request
func (s *Server) TokenGrants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokenGrants...)
}

// Revoked lists tokens passed to the revoke endpoint
func (s *Server) Revoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

// Put stores an object directly, assigning Id, SyncToken and MetaData when missing
func (s *Server) Put(entity string, obj any) string {
	data, err := json.Marshal(obj)
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(strings.ToLower(entity), m)
}

// Count returns how many objects of entity exist
func (s *Server) Count(entity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects[strings.ToLower(entity)])
}

// Object decodes a stored object into out, reporting whether it exists
func (s *Server) Object(entity, id string, out any) bool {
	s.mu.Lock()
	obj, ok := s.objects[strings.ToLower(entity)][id]
	var data []byte
	if ok {
		data, _ = json.Marshal(obj)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (s *Server) insert(entity string, m map[string]any) string {
	if s.objects[entity] == nil {
		s.objects[entity] = make(map[string]map[string]any)
	}
	id, _ := m["Id"].(string)
	if id == "" {
		s.seq++
		id = strconv.Itoa(s.seq)
		m["Id"] = id
	}
	if _, ok := m["SyncToken"]; !ok {
		m["SyncToken"] = "0"
	}
	if _, ok := m["MetaData"]; !ok {
		now := time.Now().Format(time.RFC3339)
		m["MetaData"] = map[string]any{"CreateTime": now, "LastUpdatedTime": now}
	}
	delete(m, "sparse")
	s.objects[entity][id] = m
	return id
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		ok := s.accessTokens[token]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"fault": map[string]any{
					"error": []map[string]string{{"message": "message=AuthenticationFailed", "detail": "Token invalid", "code": "3200"}},
					"type":  "AUTHENTICATION",
				},
			})
			return
		}
		if r.PathValue("realm") != RealmID {
			writeFault(w, http.StatusForbidden, "3100", "ApplicationAuthorizationFailed")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != ClientID || pass != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	grant := r.PostForm.Get("grant_type")
	s.tokenGrants = append(s.tokenGrants, grant)

	switch grant {
	case "authorization_code":
		if r.PostForm.Get("code") == "bad-code" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "code expired"})
			return
		}
	case "refresh_token":
		if s.refreshError != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": s.refreshError})
			return
		}
		if !s.refreshTokens[r.PostForm.Get("refresh_token")] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	s.seq++
	access := fmt.Sprintf("access-%d", s.seq)
	refresh := fmt.Sprintf("refresh-%d", s.seq)
	s.accessTokens[access] = true
	s.refreshTokens[refresh] = true

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":               access,
		"refresh_token":              refresh,
		"token_type":                 "bearer",
		"expires_in":                 3600,
		"x_refresh_token_expires_in": 8726400,
	})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.revoked = append(s.revoked, body.Token)
	delete(s.refreshTokens, body.Token)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

var (
	fromRe  = regexp.MustCompile(`(?i)\bfrom\s+(\w+)`)
	whereRe = regexp.MustCompile(`(?i)\bwhere\s+([\w.]+)\s*(=|>)\s*'((?:[^'\\]|\\.)*)'`)
	maxRe   = regexp.MustCompile(`(?i)\bmaxresults\s+(\d+)`)

	queryUnescaper = strings.NewReplacer(`\\`, `\`, `\'`, `'`)
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	statement := r.URL.Query().Get("query")
	from := fromRe.FindStringSubmatch(statement)
	if from == nil {
		writeFault(w, http.StatusBadRequest, "4000", "Error parsing query")
		return
	}
	entityName := from[1]
	entity := strings.ToLower(entityName)

	s.mu.Lock()
	var matched []map[string]any
	where := whereRe.FindStringSubmatch(statement)
	for _, obj := range s.objects[entity] {
		if where == nil || matches(obj, where[1], where[2], queryUnescaper.Replace(where[3])) {
			matched = append(matched, obj)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if strings.Contains(strings.ToLower(statement), "desc") {
			return lastUpdated(matched[i]).After(lastUpdated(matched[j]))
		}
		a, _ := strconv.Atoi(matched[i]["Id"].(string))
		b, _ := strconv.Atoi(matched[j]["Id"].(string))
		return a < b
	})
	if m := maxRe.FindStringSubmatch(statement); m != nil {
		if n, _ := strconv.Atoi(m[1]); n < len(matched) {
			matched = matched[:n]
		}
	}

	resp := map[string]any{}
	if len(matched) > 0 {
		resp[entityName] = matched
		resp["startPosition"] = 1
		resp["maxResults"] = len(matched)
	}
	writeJSON(w, http.StatusOK, map[string]any{"QueryResponse": resp, "time": time.Now().Format(time.RFC3339)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entity := r.PathValue("entity")
	s.mu.Lock()
	obj, ok := s.objects[entity][r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		writeFault(w, http.StatusBadRequest, "610", "Object Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{envelopeKey(entity): obj, "time": time.Now().Format(time.RFC3339)})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	entity := r.PathValue("entity")
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeFault(w, http.StatusBadRequest, "2020", "Request has invalid or unsupported property")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, _ := payload["Id"].(string)
	if id == "" {
		if entity == "customer" && s.displayNameTaken(payload["DisplayName"]) {
			writeFault(w, http.StatusBadRequest, "6240", "Duplicate Name Exists Error")
			return
		}
		id = s.insert(entity, payload)
		writeJSON(w, http.StatusOK, map[string]any{envelopeKey(entity): s.objects[entity][id], "time": time.Now().Format(time.RFC3339)})
		return
	}

	existing, ok := s.objects[entity][id]
	if !ok {
		writeFault(w, http.StatusBadRequest, "610", "Object Not Found")
		return
	}
	if payload["SyncToken"] != existing["SyncToken"] {
		writeFault(w, http.StatusBadRequest, "5010", "Stale Object Error")
		return
	}

	if r.URL.Query().Get("operation") == "delete" {
		delete(s.objects[entity], id)
		writeJSON(w, http.StatusOK, map[string]any{envelopeKey(entity): map[string]any{"Id": id, "status": "Deleted"}})
		return
	}

	for k, v := range payload {
		if k == "sparse" || k == "Id" || k == "SyncToken" || k == "MetaData" {
			continue
		}
		existing[k] = v
	}
	next, _ := strconv.Atoi(existing["SyncToken"].(string))
	existing["SyncToken"] = strconv.Itoa(next + 1)
	if meta, ok := existing["MetaData"].(map[string]any); ok {
		meta["LastUpdatedTime"] = time.Now().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, map[string]any{envelopeKey(entity): existing, "time": time.Now().Format(time.RFC3339)})
}

func (s *Server) displayNameTaken(name any) bool {
	for _, obj := range s.objects["customer"] {
		if obj["DisplayName"] == name {
			return true
		}
	}
	return false
}

func matches(obj map[string]any, field, op, value string) bool {
	var cur any = obj
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		cur = m[part]
	}
	if m, ok := cur.(map[string]any); ok {
		cur = m["Address"]
	}
	str, _ := cur.(string)

	if op == ">" {
		got, err1 := time.Parse(time.RFC3339, str)
		want, err2 := time.Parse(time.RFC3339, value)
		return err1 == nil && err2 == nil && got.After(want)
	}
	return str == value
}

func lastUpdated(obj map[string]any) time.Time {
	meta, _ := obj["MetaData"].(map[string]any)
	s, _ := meta["LastUpdatedTime"].(string)
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func envelopeKey(entity string) string {
	if entity == "" {
		return entity
	}
	return strings.ToUpper(entity[:1]) + entity[1:]
}

func writeFault(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, FaultBody(code, message))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
