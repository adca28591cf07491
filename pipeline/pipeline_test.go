package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"notice-notifier/email"
	"notice-notifier/filter"
	"notice-notifier/pkg/notifier"
	"notice-notifier/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	notices []*notifier.Notice
	err     error
}

func (f *fakeFetcher) Fetch(context.Context) ([]*notifier.Notice, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*notifier.Notice, len(f.notices))
	copy(out, f.notices)
	return out, nil
}

type fakeNotifier struct {
	digests [][]*notifier.Notice
	err     error
}

func (f *fakeNotifier) SendDigest(_ context.Context, notices []*notifier.Notice) error {
	f.digests = append(f.digests, notices)
	return f.err
}

type fakePersistence struct {
	known    map[notifier.NoticeID]bool
	saved    []*notifier.Notice
	initErr  error
	closed   bool
	preloads int
}

func newFakePersistence(known ...notifier.NoticeID) *fakePersistence {
	p := &fakePersistence{known: make(map[notifier.NoticeID]bool)}
	for _, id := range known {
		p.known[id] = true
	}
	return p
}

func (p *fakePersistence) Name() string { return "persistence" }

func (p *fakePersistence) Check(n *notifier.Notice) bool { return !p.known[n.ID] }

func (p *fakePersistence) Init(context.Context) error { return p.initErr }

func (p *fakePersistence) Close() error {
	p.closed = true
	return nil
}

func (p *fakePersistence) Preload(context.Context, []*notifier.Notice) error {
	p.preloads++
	return nil
}

func (p *fakePersistence) SaveSent(_ context.Context, notices []*notifier.Notice) int {
	for _, n := range notices {
		p.known[n.ID] = true
	}
	p.saved = append(p.saved, notices...)
	return len(notices)
}

// unusedPredicate fails the test if the chain is ever evaluated.
type unusedPredicate struct{ t *testing.T }

func (p unusedPredicate) Name() string { return "unused" }
func (p unusedPredicate) Check(*notifier.Notice) bool {
	p.t.Error("filter chain evaluated, want it skipped")
	return true
}

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func twoNotices() []*notifier.Notice {
	return []*notifier.Notice{
		{ID: "old", Title: "Holiday Notice: Holi Festival", Date: now.Add(-40 * time.Hour).Format(time.RFC3339), Content: "/files/holi.pdf"},
		{ID: "new", Title: "Exam Form for B.Tech VI Sem", Date: now.Add(-1 * time.Hour).Format(time.RFC3339), Content: "/files/exam.pdf"},
	}
}

func TestRunNormalMode(t *testing.T) {
	store := newFakePersistence()
	sender := &fakeNotifier{}
	predicates := []filter.Predicate{filter.NewTimeFilter(now, 24*time.Hour), store}

	res, err := New(&fakeFetcher{notices: twoNotices()}, predicates, store, sender, ModeNormal, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Fetched != 2 || res.Relevant != 1 || res.Notified != 1 || res.Recorded != 1 {
		t.Errorf("Run() result = %+v", res)
	}
	if len(sender.digests) != 1 || len(sender.digests[0]) != 1 || sender.digests[0][0].ID != "new" {
		t.Fatalf("digests = %v, want one digest with the VI Sem notice", sender.digests)
	}
	if !filter.IsCritical(sender.digests[0][0].Title) {
		t.Error("relevant notice should classify as critical")
	}
	if len(store.saved) != 1 || store.saved[0].ID != "new" {
		t.Errorf("saved = %v, want only the VI Sem notice", store.saved)
	}
	if !store.closed {
		t.Error("persistence not closed")
	}
}

type recordingProvider struct {
	sent []*email.Message
}

func (p *recordingProvider) Send(_ context.Context, msg *email.Message) error {
	p.sent = append(p.sent, msg)
	return nil
}

func TestRunNormalModeSendsCriticalDigest(t *testing.T) {
	store := newFakePersistence()
	provider := &recordingProvider{}
	sender := email.New(provider, testLogger(), "https://notices.example.edu", "alerts@example.com", "", []string{"student@example.com"})
	predicates := []filter.Predicate{filter.NewTimeFilter(now, 24*time.Hour), store}

	if _, err := New(&fakeFetcher{notices: twoNotices()}, predicates, store, sender, ModeNormal, testLogger()).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(provider.sent) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(provider.sent))
	}
	msg := provider.sent[0]
	if msg.Subject != email.CriticalSubject {
		t.Errorf("Subject = %q, want %q", msg.Subject, email.CriticalSubject)
	}
	if !strings.Contains(msg.HTML, "https://notices.example.edu/files/exam.pdf") {
		t.Error("digest missing the VI Sem notice link")
	}
	if strings.Contains(msg.HTML, "/files/holi.pdf") {
		t.Error("digest includes the notice older than the age limit")
	}
	if len(store.saved) != 1 || store.saved[0].ID != "new" {
		t.Errorf("saved = %v, want only the VI Sem notice", store.saved)
	}
}

func TestRunSeedMode(t *testing.T) {
	store := newFakePersistence()
	sender := &fakeNotifier{}
	predicates := []filter.Predicate{unusedPredicate{t}}

	res, err := New(&fakeFetcher{notices: twoNotices()}, predicates, store, sender, ModeSeed, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(sender.digests) != 0 {
		t.Errorf("emails sent = %d, want 0", len(sender.digests))
	}
	if res.Recorded != 2 || len(store.saved) != 2 {
		t.Errorf("recorded = %d, saved = %d, want 2", res.Recorded, len(store.saved))
	}
	// Seeding writes oldest first.
	if store.saved[0].ID != "old" || store.saved[1].ID != "new" {
		t.Errorf("seed order = [%s %s], want [old new]", store.saved[0].ID, store.saved[1].ID)
	}
}

func TestRunSeedModeSkipsKnownNotices(t *testing.T) {
	store := newFakePersistence("old")
	res, err := New(&fakeFetcher{notices: twoNotices()}, nil, store, &fakeNotifier{}, ModeSeed, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Recorded != 1 || store.saved[0].ID != "new" {
		t.Errorf("saved = %v, want only the unknown notice", store.saved)
	}
}

func TestRunSeedModeRequiresPersistence(t *testing.T) {
	_, err := New(&fakeFetcher{}, nil, nil, &fakeNotifier{}, ModeSeed, testLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want error")
	}
}

func TestRunDiagnosticModeDoesNotRecord(t *testing.T) {
	store := newFakePersistence("new")
	sender := &fakeNotifier{}
	predicates := []filter.Predicate{filter.NewContentFilter()}

	for run := 0; run < 2; run++ {
		res, err := New(&fakeFetcher{notices: twoNotices()}, predicates, store, sender, ModeDiagnostic, testLogger()).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if res.Notified != 1 || res.Recorded != 0 {
			t.Errorf("run %d result = %+v, want one notified and none recorded", run, res)
		}
	}
	if len(sender.digests) != 2 {
		t.Errorf("emails sent = %d, want 2", len(sender.digests))
	}
	if len(store.saved) != 0 {
		t.Errorf("saved = %d notices, want 0", len(store.saved))
	}
}

func TestRunFetchFailure(t *testing.T) {
	store := newFakePersistence()
	sender := &fakeNotifier{}
	fetchErr := errors.New("connection refused")

	_, err := New(&fakeFetcher{err: fetchErr}, nil, store, sender, ModeNormal, testLogger()).Run(context.Background())
	if !errors.Is(err, fetchErr) {
		t.Errorf("Run() error = %v, want %v", err, fetchErr)
	}
	if len(sender.digests) != 0 || len(store.saved) != 0 {
		t.Error("no email or save should happen after a fetch failure")
	}
	if !store.closed {
		t.Error("persistence not closed after failure")
	}
}

func TestRunInitFailureStillCloses(t *testing.T) {
	store := newFakePersistence()
	store.initErr = errors.New("bucket missing")

	_, err := New(&fakeFetcher{notices: twoNotices()}, nil, store, &fakeNotifier{}, ModeNormal, testLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want error")
	}
	if !store.closed {
		t.Error("persistence not closed after init failure")
	}
	if store.preloads != 0 {
		t.Error("preload ran after init failure")
	}
}

func TestRunDeliveryFailureDoesNotRecord(t *testing.T) {
	store := newFakePersistence()
	sender := &fakeNotifier{err: errors.New("smtp down")}
	predicates := []filter.Predicate{store}

	_, err := New(&fakeFetcher{notices: twoNotices()}, predicates, store, sender, ModeNormal, testLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want delivery error")
	}
	if len(store.saved) != 0 {
		t.Errorf("saved = %d notices after failed delivery, want 0", len(store.saved))
	}
}

func TestRunWithoutPersistence(t *testing.T) {
	sender := &fakeNotifier{}
	predicates := []filter.Predicate{filter.NewTimeFilter(now, 24*time.Hour), filter.NewContentFilter()}

	res, err := New(&fakeFetcher{notices: twoNotices()}, predicates, nil, sender, ModeNormal, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Notified != 1 || res.Recorded != 0 {
		t.Errorf("Run() result = %+v", res)
	}
}

func TestRunIsIdempotentWithRealStore(t *testing.T) {
	dir := t.TempDir()
	sender := &fakeNotifier{}

	for run := 0; run < 2; run++ {
		store := storage.New(nil, "", dir, testLogger())
		predicates := []filter.Predicate{filter.NewTimeFilter(now, 24*time.Hour), store}
		if _, err := New(&fakeFetcher{notices: twoNotices()}, predicates, store, sender, ModeNormal, testLogger()).Run(context.Background()); err != nil {
			t.Fatalf("run %d: Run() error = %v", run, err)
		}
	}

	if len(sender.digests) != 1 {
		t.Errorf("emails sent over two runs = %d, want 1", len(sender.digests))
	}
}

func TestSortByDate(t *testing.T) {
	notices := []*notifier.Notice{
		{ID: "c", Date: "2026-10-18T10:00:00Z"},
		{ID: "a", Date: "2026-10-16T10:00:00Z"},
		{ID: "b1", Date: "2026-10-17"},
		{ID: "b2", Date: "2026-10-17"},
	}
	SortByDate(notices)

	want := []notifier.NoticeID{"a", "b1", "b2", "c"}
	for i, id := range want {
		if notices[i].ID != id {
			t.Errorf("SortByDate()[%d] = %s, want %s", i, notices[i].ID, id)
		}
	}
}
