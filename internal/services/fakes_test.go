package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"domain-lifecycle/internal/database"
	"domain-lifecycle/internal/keylock"
	"domain-lifecycle/internal/logging"
	"domain-lifecycle/internal/models"
	"domain-lifecycle/internal/registrar"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fakeRegistrar is an in-memory registrar. hook, when set, runs before every
// call and may block or fail it.
type fakeRegistrar struct {
	mu       sync.Mutex
	statuses map[string]*registrar.StatusInfo
	renewTo  map[string]time.Time
	authCode string
	err      error
	calls    map[string]int
	hook     func(ctx context.Context, op, domain string) error
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{
		statuses: make(map[string]*registrar.StatusInfo),
		renewTo:  make(map[string]time.Time),
		authCode: "EPP-4d8f2a9c",
		calls:    make(map[string]int),
	}
}

func (f *fakeRegistrar) begin(ctx context.Context, op, domain string) error {
	f.mu.Lock()
	f.calls[op]++
	hook, err := f.hook, f.err
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, op, domain); err != nil {
			return err
		}
	}
	return err
}

func (f *fakeRegistrar) CheckStatus(ctx context.Context, domain string) (*registrar.StatusInfo, error) {
	if err := f.begin(ctx, "check_status", domain); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.statuses[domain]
	if !ok {
		return nil, fmt.Errorf("domain %s not found at registrar", domain)
	}
	cp := *info
	cp.Nameservers = append([]string(nil), info.Nameservers...)
	return &cp, nil
}

func (f *fakeRegistrar) Renew(ctx context.Context, domain string, years int) (*registrar.RenewResult, error) {
	if err := f.begin(ctx, "renew", domain); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	expiry, ok := f.renewTo[domain]
	if !ok {
		return nil, fmt.Errorf("renewal of %s rejected", domain)
	}
	return &registrar.RenewResult{NewExpiryDate: expiry}, nil
}

func (f *fakeRegistrar) UnlockForTransfer(ctx context.Context, domain string) (*registrar.UnlockResult, error) {
	if err := f.begin(ctx, "unlock", domain); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &registrar.UnlockResult{AuthCode: f.authCode}, nil
}

func (f *fakeRegistrar) setStatus(domain string, info registrar.StatusInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[domain] = &info
}

func (f *fakeRegistrar) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRegistrar) setHook(hook func(ctx context.Context, op, domain string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

func (f *fakeRegistrar) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

type sentNotification struct {
	domain   string
	authCode string
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []sentNotification
	err    error
	onSend func(rec *models.DomainRecord)
}

func (n *fakeNotifier) NotifyTransferOut(_ context.Context, rec *models.DomainRecord, authCode string) error {
	n.mu.Lock()
	onSend := n.onSend
	n.sent = append(n.sent, sentNotification{domain: rec.FQDN(), authCode: authCode})
	err := n.err
	n.mu.Unlock()

	if onSend != nil {
		onSend(rec)
	}
	return err
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	store     *database.Store
	recorder  *database.SyncLogRecorder
	reg       *fakeRegistrar
	notifier  *fakeNotifier
	deps      *Deps
	lifecycle *LifecycleService
	sync      *SyncService
	sweep     *SweepService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	fake := newFakeRegistrar()
	registry := registrar.NewRegistry("")
	registry.Register("acme", fake, 2*time.Second)

	deps := &Deps{
		Store:      database.NewStore(db),
		Recorder:   database.NewSyncLogRecorder(db),
		Registrars: registry,
		Locks:      keylock.New(),
		Logger:     logging.Discard(),
		Now:        tickingClock(testNow),
	}
	notifier := &fakeNotifier{}
	syncService := NewSyncService(deps)

	return &harness{
		t:        t,
		ctx:      context.Background(),
		store:    deps.Store,
		recorder: deps.Recorder,
		reg:      fake,
		notifier: notifier,
		deps:     deps,
		lifecycle: NewLifecycleService(deps, LifecycleOptions{
			RenewalYears:     []int{1, 2, 3, 5},
			DefaultRegistrar: "acme",
		}, notifier),
		sync:  syncService,
		sweep: NewSweepService(deps, syncService, 3, DefaultWindows()),
	}
}

// seed stores an active-looking record for label.com in the given status
func (h *harness) seed(label string, status models.Status, expiry *time.Time) *models.DomainRecord {
	h.t.Helper()
	rec := &models.DomainRecord{
		DomainName:       label,
		Extension:        "com",
		Owner:            "acct-42",
		Status:           status,
		RegistrationDate: date(2020, 1, 1),
		ExpiryDate:       expiry,
		ExpirySource:     models.ExpirySourceRegistrar,
		Nameservers:      models.Nameservers{"ns1.acme.net", "ns2.acme.net"},
		Locked:           true,
		RegistrarName:    "acme",
	}
	require.NoError(h.t, h.store.CreateDomain(h.ctx, rec))
	return rec
}

func (h *harness) reload(id string) *models.DomainRecord {
	h.t.Helper()
	rec, err := h.store.GetDomain(h.ctx, id)
	require.NoError(h.t, err)
	return rec
}

func (h *harness) entries(id string) []models.SyncLogEntry {
	h.t.Helper()
	entries, err := h.recorder.List(h.ctx, id, 0)
	require.NoError(h.t, err)
	return entries
}

func timePtr(t time.Time) *time.Time { return &t }

// tickingClock starts at start and moves one second per reading so audit
// entries written in one test have a stable order.
func tickingClock(start time.Time) func() time.Time {
	var ticks atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(ticks.Add(1)) * time.Second)
	}
}

var errUpstream = errors.New("registrar API returned 503")
