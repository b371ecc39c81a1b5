// Package testutil provides configurable mock servers for the Graph and
// Airtable APIs used in tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// GraphRecipient is one recipient in a mock message.
type GraphRecipient struct {
	Address string
	Name    string
}

// GraphMessage is one sent mail served by the mock.
type GraphMessage struct {
	Subject  string
	Sender   GraphRecipient
	To       []GraphRecipient
	Cc       []GraphRecipient
	Bcc      []GraphRecipient
	Received string
}

// batchFailure injects transient failures for one page offset.
type batchFailure struct {
	remaining int
	status    int
}

// MockGraph is a configurable mock of the Graph endpoints the client uses:
// the token exchange, the SentItems folder lookup, and the message listing.
type MockGraph struct {
	server *httptest.Server

	mu       sync.RWMutex
	messages []GraphMessage
	failures map[int]*batchFailure
	failAuth bool

	// Tracking
	TokenRequests int
	CountRequests int
	PageRequests  int
}

// NewMockGraph creates a mock Graph server.
func NewMockGraph() *MockGraph {
	mock := &MockGraph{
		failures: make(map[int]*batchFailure),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL. Use it as the client's LoginBaseURL, and
// BaseURL() as the Graph API root.
func (m *MockGraph) URL() string {
	return m.server.URL
}

// BaseURL returns the Graph API root of the mock.
func (m *MockGraph) BaseURL() string {
	return m.server.URL + "/v1.0"
}

// Close shuts down the mock server.
func (m *MockGraph) Close() {
	m.server.Close()
}

// SetMessages replaces the served sent-item collection.
func (m *MockGraph) SetMessages(msgs []GraphMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = msgs
}

// FailAuth makes the token endpoint answer 401.
func (m *MockGraph) FailAuth(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAuth = fail
}

// FailBatch makes the listing at the given offset fail with status for the
// next times requests, then succeed.
func (m *MockGraph) FailBatch(offset, times, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[offset] = &batchFailure{remaining: times, status: status}
}

func (m *MockGraph) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/oauth2/v2.0/token"):
		m.handleToken(w, r)
	case strings.HasSuffix(r.URL.Path, "/mailFolders/SentItems/messages"):
		m.handleMessages(w, r)
	case strings.HasSuffix(r.URL.Path, "/mailFolders/SentItems"):
		m.handleFolder(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockGraph) handleToken(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	m.TokenRequests++
	failAuth := m.failAuth
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failAuth {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "invalid_client"}`)
		return
	}

	fmt.Fprint(w, `{"access_token": "test-token", "token_type": "Bearer", "expires_in": 3599}`)
}

func (m *MockGraph) handleFolder(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	m.CountRequests++
	total := len(m.messages)
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"id": "sentitems", "displayName": "Sent Items", "totalItemCount": %d}`, total)
}

func (m *MockGraph) handleMessages(w http.ResponseWriter, r *http.Request) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
	top, _ := strconv.Atoi(r.URL.Query().Get("$top"))
	if top <= 0 {
		top = 50
	}

	m.mu.Lock()
	m.PageRequests++
	if f, ok := m.failures[skip]; ok && f.remaining > 0 {
		f.remaining--
		status := f.status
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error": {"code": "serviceNotAvailable"}}`)
		return
	}

	end := min(skip+top, len(m.messages))
	var page []GraphMessage
	if skip < end {
		page = append(page, m.messages[skip:end]...)
	}
	m.mu.Unlock()

	value := make([]map[string]any, 0, len(page))
	for _, msg := range page {
		value = append(value, map[string]any{
			"subject":          msg.Subject,
			"sender":           wireRecipient(msg.Sender),
			"toRecipients":     wireRecipients(msg.To),
			"ccRecipients":     wireRecipients(msg.Cc),
			"bccRecipients":    wireRecipients(msg.Bcc),
			"receivedDateTime": msg.Received,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"value": value})
}

func wireRecipient(r GraphRecipient) map[string]any {
	return map[string]any{
		"emailAddress": map[string]any{"address": r.Address, "name": r.Name},
	}
}

func wireRecipients(recipients []GraphRecipient) []map[string]any {
	out := make([]map[string]any, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, wireRecipient(r))
	}
	return out
}
