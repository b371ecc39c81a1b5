package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// AirtableRecord is one row held by the mock table.
type AirtableRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// MockAirtable is a configurable mock of the Airtable records API: cursor
// paginated listing, batch creates and batch patches.
type MockAirtable struct {
	server *httptest.Server

	mu           sync.RWMutex
	records      []AirtableRecord
	nextID       int
	listPageSize int
	writeFails   int
	writeStatus  int

	// Tracking
	ListRequests   int
	InsertRequests int
	UpdateRequests int
}

// NewMockAirtable creates a mock Airtable server.
func NewMockAirtable() *MockAirtable {
	mock := &MockAirtable{
		nextID:       1,
		listPageSize: 100,
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL. Use it as the client's BaseURL.
func (m *MockAirtable) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAirtable) Close() {
	m.server.Close()
}

// SetListPageSize caps rows per list response so tests can exercise the
// continuation cursor with small tables.
func (m *MockAirtable) SetListPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listPageSize = n
}

// Seed replaces the table contents.
func (m *MockAirtable) Seed(records []AirtableRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]AirtableRecord(nil), records...)
	m.nextID = len(records) + 1
}

// FailWrites makes the next times write requests fail with status.
func (m *MockAirtable) FailWrites(times, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeFails = times
	m.writeStatus = status
}

// Records returns a snapshot of the table.
func (m *MockAirtable) Records() []AirtableRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]AirtableRecord(nil), m.records...)
}

func (m *MockAirtable) handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		m.handleList(w, r)
	case http.MethodPost:
		m.handleInsert(w, r)
	case http.MethodPatch:
		m.handleUpdate(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (m *MockAirtable) handleList(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.ListRequests++
	start, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	end := min(start+m.listPageSize, len(m.records))
	page := append([]AirtableRecord(nil), m.records[start:end]...)
	more := end < len(m.records)
	m.mu.Unlock()

	resp := map[string]any{"records": page}
	if more {
		resp["offset"] = strconv.Itoa(end)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type writePayload struct {
	Records []struct {
		ID     string         `json:"id"`
		Fields map[string]any `json:"fields"`
	} `json:"records"`
}

// failWrite consumes one injected failure if pending. Caller holds the lock.
func (m *MockAirtable) failWrite(w http.ResponseWriter) bool {
	if m.writeFails <= 0 {
		return false
	}
	m.writeFails--
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(m.writeStatus)
	fmt.Fprint(w, `{"error": {"type": "SERVICE_UNAVAILABLE"}}`)
	return true
}

func (m *MockAirtable) handleInsert(w http.ResponseWriter, r *http.Request) {
	var payload writePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusUnprocessableEntity)
		return
	}

	m.mu.Lock()
	m.InsertRequests++
	if m.failWrite(w) {
		m.mu.Unlock()
		return
	}

	created := make([]AirtableRecord, 0, len(payload.Records))
	for _, rec := range payload.Records {
		row := AirtableRecord{
			ID:     fmt.Sprintf("rec%06d", m.nextID),
			Fields: rec.Fields,
		}
		m.nextID++
		m.records = append(m.records, row)
		created = append(created, row)
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"records": created})
}

func (m *MockAirtable) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload writePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusUnprocessableEntity)
		return
	}

	m.mu.Lock()
	m.UpdateRequests++
	if m.failWrite(w) {
		m.mu.Unlock()
		return
	}

	updated := make([]AirtableRecord, 0, len(payload.Records))
	for _, rec := range payload.Records {
		for i := range m.records {
			if m.records[i].ID != rec.ID {
				continue
			}
			for k, v := range rec.Fields {
				if m.records[i].Fields == nil {
					m.records[i].Fields = make(map[string]any)
				}
				m.records[i].Fields[k] = v
			}
			updated = append(updated, m.records[i])
			break
		}
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"records": updated})
}
