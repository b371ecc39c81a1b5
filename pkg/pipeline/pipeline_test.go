package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSource serves a fixed message slice page by page, with optional
// failure injection per offset and an optional stop trigger.
type fakeSource struct {
	mu        sync.Mutex
	msgs      []Message
	authErr   error
	countErr  error
	failures  map[int]int // offset -> remaining failures, -1 for permanent
	pageCalls map[int]int
	authCalls int

	// stopOn sets the flag after serving the given offset, simulating a
	// user pressing stop mid-run.
	stopOn     int
	stopFlag   *StopFlag
	stopActive bool
}

func newFakeSource(msgs []Message) *fakeSource {
	return &fakeSource{
		msgs:      msgs,
		failures:  make(map[int]int),
		pageCalls: make(map[int]int),
	}
}

func (s *fakeSource) stopAfter(offset int, flag *StopFlag) {
	s.stopOn = offset
	s.stopFlag = flag
	s.stopActive = true
}

func (s *fakeSource) Authenticate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authCalls++
	return s.authErr
}

func (s *fakeSource) TotalCount(context.Context) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return len(s.msgs), nil
}

func (s *fakeSource) ListPage(_ context.Context, offset, pageSize int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pageCalls[offset]++
	if remaining, ok := s.failures[offset]; ok && remaining != 0 {
		if remaining > 0 {
			s.failures[offset]--
		}
		return nil, fmt.Errorf("injected failure at offset %d", offset)
	}

	if s.stopActive && offset == s.stopOn {
		s.stopFlag.Stop()
	}

	end := min(offset+pageSize, len(s.msgs))
	if offset >= end {
		return nil, nil
	}
	page := make([]Message, end-offset)
	copy(page, s.msgs[offset:end])
	return page, nil
}

// fakeDest records every write chunk it receives.
type fakeDest struct {
	mu          sync.Mutex
	existing    []Record
	listErr     error
	failInserts int

	insertChunks [][]Fields
	updateChunks [][]Update
}

func (d *fakeDest) ListRecords(context.Context) ([]Record, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.existing, nil
}

func (d *fakeDest) Insert(_ context.Context, records []Fields) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failInserts > 0 {
		d.failInserts--
		return errors.New("injected insert failure")
	}
	chunk := make([]Fields, len(records))
	copy(chunk, records)
	d.insertChunks = append(d.insertChunks, chunk)
	return nil
}

func (d *fakeDest) Update(_ context.Context, records []Update) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	chunk := make([]Update, len(records))
	copy(chunk, records)
	d.updateChunks = append(d.updateChunks, chunk)
	return nil
}

func (d *fakeDest) insertedEmails() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var emails []string
	for _, chunk := range d.insertChunks {
		for _, f := range chunk {
			emails = append(emails, f.RecipientEmail)
		}
	}
	return emails
}

// captureSink collects emitted lines for assertions.
type captureSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *captureSink) Emit(line string) {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
}

func (s *captureSink) contains(sub string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

// genMessages produces n messages, each addressed to one unique recipient.
func genMessages(n int) []Message {
	msgs := make([]Message, n)
	for i := range msgs {
		addr := fmt.Sprintf("user%03d@example.com", i)
		msgs[i] = Message{
			Subject:  fmt.Sprintf("Subject %d", i),
			To:       []string{addr},
			Received: "2024-03-01T12:00:00Z",
			Names:    map[string]string{addr: fmt.Sprintf("User %03d", i)},
		}
	}
	return msgs
}

func testConfig() Config {
	return Config{
		PageSize:   50,
		MaxWorkers: 3,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		ChunkSize:  10,
	}
}

func TestNew_Validation(t *testing.T) {
	src := newFakeSource(nil)
	dest := &fakeDest{}

	if _, err := New(Config{}, nil, dest, nil, nil); err == nil {
		t.Error("Expected error for nil source")
	}
	if _, err := New(Config{}, src, nil, nil, nil); err == nil {
		t.Error("Expected error for nil destination")
	}
	if _, err := New(Config{}, src, dest, nil, nil); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestRun_FullSuccess(t *testing.T) {
	src := newFakeSource(genMessages(120))
	dest := &fakeDest{}
	sink := &captureSink{}

	r, err := New(testConfig(), src, dest, sink, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.TotalRecords != 120 || res.Fetched != 120 || res.FailedBatches != 0 {
		t.Errorf("Unexpected fetch result: %+v", res)
	}
	if res.Recipients != 120 || res.Inserted != 120 || res.Updated != 0 {
		t.Errorf("Unexpected reconcile result: %+v", res)
	}
	if res.Stopped {
		t.Error("Run must not report stopped")
	}

	// 120 inserts in chunks of 10.
	if len(dest.insertChunks) != 12 {
		t.Errorf("Expected 12 insert chunks, got %d", len(dest.insertChunks))
	}
	for i, chunk := range dest.insertChunks {
		if len(chunk) > 10 {
			t.Errorf("Chunk %d has %d records, limit is 10", i, len(chunk))
		}
	}

	for _, line := range []string{
		"total emails in sent folder: 120",
		"found 0 existing records",
		"total no of new records: 120",
		"run completed",
	} {
		if !sink.contains(line) {
			t.Errorf("Missing progress line %q", line)
		}
	}
}

func TestRun_FailedBatchContributesNothing(t *testing.T) {
	// 120 records in pages of 50 give batches at offsets 0, 50, 100. The
	// middle batch fails every attempt; the run continues with the rest.
	src := newFakeSource(genMessages(120))
	src.failures[50] = -1
	dest := &fakeDest{}
	sink := &captureSink{}

	cfg := testConfig()
	cfg.MaxRetries = 2

	r, err := New(cfg, src, dest, sink, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Fetched != 70 {
		t.Errorf("Fetched = %d, expected 70", res.Fetched)
	}
	if res.FailedBatches != 1 {
		t.Errorf("FailedBatches = %d, expected 1", res.FailedBatches)
	}
	if res.Recipients != 70 || res.Inserted != 70 {
		t.Errorf("Unexpected reconcile result: %+v", res)
	}

	if got := src.pageCalls[50]; got != 2 {
		t.Errorf("Failing offset attempted %d times, expected 2", got)
	}

	// The failed batch's recipients never reach the destination.
	for _, email := range dest.insertedEmails() {
		if email >= "user050@example.com" && email <= "user099@example.com" {
			t.Errorf("Recipient %s from failed batch was written", email)
		}
	}

	if !sink.contains("batch 1 failed after 2 retries") {
		t.Error("Missing permanent-failure progress line")
	}
}

func TestRun_RetryRecoversTransientFailure(t *testing.T) {
	src := newFakeSource(genMessages(60))
	src.failures[0] = 1 // fail once, then succeed
	dest := &fakeDest{}
	sink := &captureSink{}

	r, err := New(testConfig(), src, dest, sink, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Fetched != 60 || res.FailedBatches != 0 {
		t.Errorf("Unexpected result: %+v", res)
	}
	if got := src.pageCalls[0]; got != 2 {
		t.Errorf("Offset 0 attempted %d times, expected 2", got)
	}
	if !sink.contains("error fetching batch 0 (attempt 1/3)") {
		t.Error("Missing retry progress line")
	}
}

func TestRun_AuthFailureIsFatal(t *testing.T) {
	src := newFakeSource(genMessages(10))
	src.authErr = errors.New("invalid client secret")
	dest := &fakeDest{}
	sink := &captureSink{}

	r, err := New(testConfig(), src, dest, sink, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = r.Run(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Errorf("Expected ErrAuth, got %v", err)
	}
	if len(src.pageCalls) != 0 {
		t.Error("No pages must be fetched after auth failure")
	}
	if !sink.contains("failed to get access token") {
		t.Error("Missing auth failure progress line")
	}
	if !sink.contains("run completed") {
		t.Error("Terminal line must be emitted even on failure")
	}
}

func TestRun_CountFailureIsFatal(t *testing.T) {
	src := newFakeSource(genMessages(10))
	src.countErr = errors.New("folder not found")
	dest := &fakeDest{}

	r, err := New(testConfig(), src, dest, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = r.Run(context.Background())
	if !errors.Is(err, ErrCountUnavailable) {
		t.Errorf("Expected ErrCountUnavailable, got %v", err)
	}
}

func TestRun_StoppedBeforeStart(t *testing.T) {
	src := newFakeSource(genMessages(10))
	dest := &fakeDest{}
	sink := &captureSink{}

	var flag StopFlag
	flag.Stop()

	r, err := New(testConfig(), src, dest, sink, &flag)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !res.Stopped {
		t.Error("Expected stopped result")
	}
	if src.authCalls != 0 {
		t.Error("A pre-stopped run must not authenticate")
	}
	if !sink.contains("processing stopped by user") || !sink.contains("run completed") {
		t.Error("Missing stop or terminal progress line")
	}
}

func TestRun_CancellationMidFetch(t *testing.T) {
	// One worker makes batch completion sequential. The stop flag is set
	// while batch 0 is served, so batches 1 and 2 are abandoned before
	// their fetches start, and reconciliation covers batch 0 only.
	src := newFakeSource(genMessages(150))
	dest := &fakeDest{}
	sink := &captureSink{}

	var flag StopFlag
	src.stopAfter(0, &flag)

	cfg := testConfig()
	cfg.MaxWorkers = 1

	r, err := New(cfg, src, dest, sink, &flag)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !res.Stopped {
		t.Error("Expected stopped result")
	}
	if res.Fetched != 50 {
		t.Errorf("Fetched = %d, expected 50", res.Fetched)
	}
	if res.Recipients != 50 {
		t.Errorf("Recipients = %d, expected 50", res.Recipients)
	}

	if got := src.pageCalls[50] + src.pageCalls[100]; got != 0 {
		t.Errorf("Abandoned batches were fetched %d times", got)
	}

	// Writes cover only what was fetched before the stop.
	for _, email := range dest.insertedEmails() {
		if email >= "user050@example.com" {
			t.Errorf("Recipient %s beyond the stop point was written", email)
		}
	}
	if res.Inserted != 50 {
		t.Errorf("Inserted = %d, expected 50", res.Inserted)
	}
	if !sink.contains("processing stopped by user") {
		t.Error("Missing stop progress line")
	}
}

func TestRun_UpdatesExistingRecords(t *testing.T) {
	src := newFakeSource(genMessages(5))
	dest := &fakeDest{
		existing: []Record{
			// Stale count, hyphenated stored date.
			{ID: "rec1", Fields: Fields{RecipientEmail: "user000@example.com", TotalMailsSent: 0, LastInteracted: "2024-03-01"}},
			// Already in sync.
			{ID: "rec2", Fields: Fields{RecipientEmail: "user001@example.com", TotalMailsSent: 1, LastInteracted: "2024-03-01"}},
		},
	}
	sink := &captureSink{}

	r, err := New(testConfig(), src, dest, sink, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Inserted != 3 {
		t.Errorf("Inserted = %d, expected 3", res.Inserted)
	}
	if res.Updated != 1 {
		t.Errorf("Updated = %d, expected 1", res.Updated)
	}

	if len(dest.updateChunks) != 1 || len(dest.updateChunks[0]) != 1 {
		t.Fatalf("Unexpected update chunks: %v", dest.updateChunks)
	}
	u := dest.updateChunks[0][0]
	if u.ID != "rec1" || u.TotalMailsSent != 1 {
		t.Errorf("Unexpected update: %+v", u)
	}

	if !sink.contains("found 2 existing records") {
		t.Error("Missing existing-records progress line")
	}
}

func TestRun_FailedWriteChunkIsSkipped(t *testing.T) {
	// 25 inserts in chunks of 10 give chunks of 10, 10 and 5. The first
	// chunk fails and is skipped; the rest still lands.
	src := newFakeSource(genMessages(25))
	dest := &fakeDest{failInserts: 1}
	sink := &captureSink{}

	r, err := New(testConfig(), src, dest, sink, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed, write errors must not abort: %v", err)
	}

	if res.Inserted != 15 {
		t.Errorf("Inserted = %d, expected 15", res.Inserted)
	}
	if len(dest.insertChunks) != 2 {
		t.Errorf("Expected 2 applied chunks, got %d", len(dest.insertChunks))
	}
	if !sink.contains("error uploading records") {
		t.Error("Missing write failure progress line")
	}
}

func TestRun_SnapshotFailureEndsQuietly(t *testing.T) {
	src := newFakeSource(genMessages(5))
	dest := &fakeDest{listErr: errors.New("base unreachable")}
	sink := &captureSink{}

	r, err := New(testConfig(), src, dest, sink, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failure must not surface as run error: %v", err)
	}

	if res.Inserted != 0 || res.Updated != 0 {
		t.Errorf("No writes expected, got %+v", res)
	}
	if !sink.contains("error in final processing") {
		t.Error("Missing final processing failure line")
	}
	if !sink.contains("run completed") {
		t.Error("Terminal line must still be emitted")
	}
}
