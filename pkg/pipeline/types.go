package pipeline

import (
	"context"
	"strings"
)

// Message is one sent mail as returned by the source API.
// Immutable once fetched.
type Message struct {
	// Subject of the mail ("No Subject" when the source omits it).
	Subject string

	// From is the sender address ("Unknown" when the source omits it).
	From string

	// Recipient addresses by role, in source order. An address may appear
	// in more than one role and more than once per role.
	To  []string
	Cc  []string
	Bcc []string

	// Received is the ISO-8601 UTC receive timestamp, e.g. 2024-03-01T12:00:00Z.
	Received string

	// Names maps recipient address -> display name, unioned over all roles.
	Names map[string]string
}

// Source is the paginated mail API a run reads from.
type Source interface {
	// Authenticate acquires the access token for the run. The token is
	// fetched once up front and treated as immutable for the run.
	Authenticate(ctx context.Context) error

	// TotalCount returns the total number of records in the collection.
	TotalCount(ctx context.Context) (int, error)

	// ListPage returns the records in [offset, offset+pageSize).
	ListPage(ctx context.Context, offset, pageSize int) ([]Message, error)
}

// Fields is the full destination field set for one recipient.
type Fields struct {
	RecipientEmail string
	Company        string
	Name           string
	TotalMailsSent int
	LastInteracted string
}

// Update carries the destination identifier and the tracked fields that
// changed for an existing record.
type Update struct {
	ID             string
	TotalMailsSent int
	LastInteracted string
}

// Record is one existing destination row, point-in-time.
type Record struct {
	ID     string
	Fields Fields
}

// Destination is the record store a run writes to. Insert and Update accept
// at most one write chunk per call (see Config.ChunkSize).
type Destination interface {
	// ListRecords returns the full table snapshot, following the
	// continuation cursor until exhausted.
	ListRecords(ctx context.Context) ([]Record, error)

	Insert(ctx context.Context, records []Fields) error
	Update(ctx context.Context, records []Update) error
}

// RecipientSummary is the aggregate for one recipient address.
type RecipientSummary struct {
	// Email is the normalized recipient address, the unique key.
	Email string

	// Company is the address domain, "unknown" when the address has no '@'.
	Company string

	// Name is the display name from the first contributing record. Never
	// overwritten by later records, even when empty.
	Name string

	// TotalMailsSent counts occurrences across to/cc/bcc, not messages.
	// Monotonically non-decreasing as records fold in.
	TotalMailsSent int

	// LastInteracted is the max contributing receive date as YYYY/MM/DD,
	// empty when no contributing timestamp parsed. Monotonically
	// non-decreasing (lexical max, which orders correctly for this format).
	LastInteracted string
}

// NormalizeAddress canonicalizes a recipient address for use as a key:
// surrounding whitespace stripped, lowercased.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// AddressDomain returns the substring after the final '@', or "unknown"
// when the address contains none.
func AddressDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return "unknown"
}
