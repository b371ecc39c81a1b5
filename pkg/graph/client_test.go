package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/Suryakiran09/Outlook-Automation-Pipeline/internal/testutil"
)

func newTestClient(t *testing.T, mock *testutil.MockGraph) *Client {
	t.Helper()

	client, err := New(Config{
		TenantID:     "test-tenant",
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Mailbox:      "sales@corp.com",
		BaseURL:      mock.BaseURL(),
		LoginBaseURL: mock.URL(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name: "valid config",
			config: Config{
				TenantID:     "t",
				ClientID:     "c",
				ClientSecret: "s",
				Mailbox:      "m@corp.com",
			},
			expectError: false,
		},
		{
			name: "missing credentials",
			config: Config{
				Mailbox: "m@corp.com",
			},
			expectError: true,
		},
		{
			name: "missing mailbox",
			config: Config{
				TenantID:     "t",
				ClientID:     "c",
				ClientSecret: "s",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if tt.expectError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	client, err := New(Config{
		TenantID:     "t",
		ClientID:     "c",
		ClientSecret: "s",
		Mailbox:      "m@corp.com",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if client.cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, expected default", client.cfg.BaseURL)
	}
	if client.cfg.LoginBaseURL != DefaultLoginBaseURL {
		t.Errorf("LoginBaseURL = %q, expected default", client.cfg.LoginBaseURL)
	}
}

func TestAuthenticate(t *testing.T) {
	mock := testutil.NewMockGraph()
	defer mock.Close()

	client := newTestClient(t, mock)
	ctx := context.Background()

	if err := client.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if client.token != "test-token" {
		t.Errorf("token = %q, expected test-token", client.token)
	}
	if mock.TokenRequests != 1 {
		t.Errorf("TokenRequests = %d, expected 1", mock.TokenRequests)
	}

	mock.FailAuth(true)
	failing := newTestClient(t, mock)
	if err := failing.Authenticate(ctx); err == nil {
		t.Error("Expected error for rejected credentials")
	}
}

func TestTotalCount(t *testing.T) {
	mock := testutil.NewMockGraph()
	defer mock.Close()
	mock.SetMessages(make([]testutil.GraphMessage, 7))

	client := newTestClient(t, mock)
	ctx := context.Background()
	if err := client.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	total, err := client.TotalCount(ctx)
	if err != nil {
		t.Fatalf("TotalCount failed: %v", err)
	}
	if total != 7 {
		t.Errorf("TotalCount = %d, expected 7", total)
	}
}

func TestListPage(t *testing.T) {
	mock := testutil.NewMockGraph()
	defer mock.Close()
	mock.SetMessages([]testutil.GraphMessage{
		{
			Subject:  "First",
			Sender:   testutil.GraphRecipient{Address: "me@corp.com", Name: "Me"},
			To:       []testutil.GraphRecipient{{Address: "alice@example.com", Name: "Alice"}},
			Received: "2024-03-01T12:00:00Z",
		},
		{
			Subject:  "Second",
			Sender:   testutil.GraphRecipient{Address: "me@corp.com", Name: "Me"},
			To:       []testutil.GraphRecipient{{Address: "bob@example.com", Name: "Bob"}},
			Cc:       []testutil.GraphRecipient{{Address: "alice@example.com", Name: "Alice"}},
			Received: "2024-03-02T12:00:00Z",
		},
		{
			Subject:  "Third",
			Received: "2024-03-03T12:00:00Z",
		},
	})

	client := newTestClient(t, mock)
	ctx := context.Background()
	if err := client.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	msgs, err := client.ListPage(ctx, 0, 2)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Subject != "First" || msgs[1].Subject != "Second" {
		t.Errorf("Unexpected subjects: %q, %q", msgs[0].Subject, msgs[1].Subject)
	}
	if len(msgs[1].Cc) != 1 || msgs[1].Cc[0] != "alice@example.com" {
		t.Errorf("Cc = %v", msgs[1].Cc)
	}

	// Offset past the penultimate record returns the tail.
	msgs, err = client.ListPage(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Subject != "Third" {
		t.Errorf("Unexpected tail page: %v", msgs)
	}

	// Offset past the end returns an empty page, not an error.
	msgs, err = client.ListPage(ctx, 10, 2)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected empty page, got %d messages", len(msgs))
	}
}

func TestListPage_ErrorClassification(t *testing.T) {
	mock := testutil.NewMockGraph()
	defer mock.Close()
	mock.SetMessages(make([]testutil.GraphMessage, 5))
	mock.FailBatch(0, 1, 503)

	client := newTestClient(t, mock)
	ctx := context.Background()
	if err := client.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	_, err := client.ListPage(ctx, 0, 5)
	if err == nil {
		t.Fatal("Expected error from failing page")
	}

	var gerr *Error
	if !errors.As(err, &gerr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if gerr.StatusCode != 503 || gerr.Class != ErrorClassServer {
		t.Errorf("Unexpected classification: %+v", gerr)
	}

	// The injected failure is consumed; the next attempt succeeds. The
	// client itself never retries.
	if _, err := client.ListPage(ctx, 0, 5); err != nil {
		t.Errorf("Expected success after failure consumed: %v", err)
	}
	if mock.PageRequests != 2 {
		t.Errorf("PageRequests = %d, expected 2", mock.PageRequests)
	}
}
