package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/classifier"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/consent"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/followup/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/selector"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/whatsapp"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/apperr"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
)

type memStore struct {
	mu           sync.Mutex
	entries      map[uuid.UUID]*repository.Entry
	leads        map[uuid.UUID]*repository.Lead
	states       map[uuid.UUID]string
	tracking     []repository.TrackingParams
	failSchedule int // fail the next N ScheduleNext calls
}

func newMemStore() *memStore {
	return &memStore{
		entries: make(map[uuid.UUID]*repository.Entry),
		leads:   make(map[uuid.UUID]*repository.Lead),
		states:  make(map[uuid.UUID]string),
	}
}

func (m *memStore) addLead(lead repository.Lead) {
	m.leads[lead.ID] = &lead
}

func (m *memStore) addState(state string) uuid.UUID {
	id := uuid.New()
	m.states[id] = state
	return id
}

func (m *memStore) activeCount(leadID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.LeadID == leadID && (e.Status == repository.StatusPending || e.Status == repository.StatusProcessing) {
			n++
		}
	}
	return n
}

func (m *memStore) Create(_ context.Context, tenantID, leadID, stateID uuid.UUID, scheduledTime time.Time) (repository.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &repository.Entry{
		ID:            uuid.New(),
		TenantID:      tenantID,
		LeadID:        leadID,
		StateID:       stateID,
		SequenceStage: 1,
		Status:        repository.StatusPending,
		ScheduledTime: scheduledTime,
	}
	m.entries[e.ID] = e
	return *e, nil
}

func (m *memStore) ActiveEntry(_ context.Context, leadID uuid.UUID) (repository.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.LeadID == leadID && (e.Status == repository.StatusPending || e.Status == repository.StatusProcessing) {
			return *e, nil
		}
	}
	return repository.Entry{}, repository.ErrNotFound
}

func (m *memStore) CancelActive(_ context.Context, leadID uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, e := range m.entries {
		if e.LeadID == leadID && (e.Status == repository.StatusPending || e.Status == repository.StatusProcessing) {
			e.Status = repository.StatusCancelled
			e.CancelledReason = &reason
			found = true
		}
	}
	if !found {
		return repository.ErrNotFound
	}
	return nil
}

func (m *memStore) ClaimDue(_ context.Context, limit int) ([]repository.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []repository.Entry
	for _, e := range m.entries {
		if len(claimed) >= limit {
			break
		}
		if e.Status == repository.StatusPending && !e.ScheduledTime.After(time.Now()) {
			e.Status = repository.StatusProcessing
			claimed = append(claimed, *e)
		}
	}
	return claimed, nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (repository.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return repository.Entry{}, repository.ErrNotFound
	}
	return *e, nil
}

func (m *memStore) MarkSent(_ context.Context, id uuid.UUID, templateID *uuid.UUID, templateName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	if e.Status != repository.StatusProcessing {
		return false, nil
	}
	e.Status = repository.StatusSent
	e.SelectedTemplateID = templateID
	e.SelectedTemplateName = &templateName
	return true, nil
}

func (m *memStore) MarkFailed(_ context.Context, id uuid.UUID, deliveryError string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	if e.Status != repository.StatusProcessing {
		return false, nil
	}
	e.Status = repository.StatusFailed
	e.DeliveryError = &deliveryError
	return true, nil
}

func (m *memStore) ScheduleNext(_ context.Context, id uuid.UUID, nextStage int, scheduledTime time.Time, templateID *uuid.UUID, templateName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSchedule > 0 {
		m.failSchedule--
		return false, errors.New("connection reset")
	}
	e := m.entries[id]
	if e.Status != repository.StatusProcessing {
		return false, nil
	}
	e.Status = repository.StatusPending
	e.SequenceStage = nextStage
	e.ScheduledTime = scheduledTime
	e.SelectedTemplateID = templateID
	e.SelectedTemplateName = &templateName
	return true, nil
}

func (m *memStore) ReclaimStale(_ context.Context, _ time.Duration) (int, error) { return 0, nil }

func (m *memStore) GetLead(_ context.Context, leadID uuid.UUID) (repository.Lead, error) {
	l, ok := m.leads[leadID]
	if !ok {
		return repository.Lead{}, repository.ErrNotFound
	}
	return *l, nil
}

func (m *memStore) LeadStateValue(_ context.Context, stateID uuid.UUID) (string, error) {
	s, ok := m.states[stateID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return s, nil
}

func (m *memStore) TouchLeadInbound(_ context.Context, leadID uuid.UUID) error {
	if l, ok := m.leads[leadID]; ok {
		now := time.Now()
		l.LastInboundAt = &now
	}
	return nil
}

func (m *memStore) AppendTracking(_ context.Context, p repository.TrackingParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracking = append(m.tracking, p)
	return nil
}

func (m *memStore) DeliveredTracking(_ context.Context, sequenceID uuid.UUID, stage int) (repository.TrackingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.tracking) - 1; i >= 0; i-- {
		tr := m.tracking[i]
		if tr.SequenceID == sequenceID && tr.Stage == stage && tr.Outcome == "delivered" {
			return repository.TrackingRecord{TemplateID: tr.TemplateID, TemplateName: tr.TemplateName}, nil
		}
	}
	return repository.TrackingRecord{}, repository.ErrNotFound
}

func (m *memStore) StatsWindow(_ context.Context, _ uuid.UUID, _ int) (repository.Stats, error) {
	return repository.Stats{}, nil
}

type fakeClassifier struct {
	stateID uuid.UUID
	state   classifier.LeadState
}

func (f *fakeClassifier) Classify(_ context.Context, _ classifier.ClassifyInput) (classifier.Classification, error) {
	return classifier.Classification{
		Result:  classifier.Result{State: f.state, Confidence: 0.9, Method: classifier.MethodSemantic},
		StateID: f.stateID,
	}, nil
}

type fakeConsent struct {
	mu      sync.Mutex
	allowed bool
	reason  string
}

func (f *fakeConsent) CheckConsent(_ context.Context, _ uuid.UUID) (consent.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return consent.Decision{Allowed: f.allowed, Reason: f.reason}, nil
}

func (f *fakeConsent) RevokeConsent(_ context.Context, _, _ uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowed = false
	f.reason = reason
	return nil
}

type fakeTemplates struct {
	mu     sync.Mutex
	stages []int
}

func (f *fakeTemplates) GetTemplateForState(_ context.Context, _ uuid.UUID, _ classifier.LeadState, stage int) (selector.Selection, error) {
	f.mu.Lock()
	f.stages = append(f.stages, stage)
	f.mu.Unlock()
	return selector.Selection{TemplateName: "tpl_stage", Content: "Hi {{1}}"}, nil
}

type fakeGateway struct {
	mu    sync.Mutex
	sends int
	fail  bool
}

func (f *fakeGateway) SendTemplateMessage(_ context.Context, _, _, _ string, _ []string) whatsapp.SendResult {
	return f.send()
}

func (f *fakeGateway) SendFreeform(_ context.Context, _, _ string) whatsapp.SendResult {
	return f.send()
}

func (f *fakeGateway) send() whatsapp.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if f.fail {
		return whatsapp.SendResult{Error: "gateway unavailable"}
	}
	return whatsapp.SendResult{Success: true, MessageID: "msg-1"}
}

func newTestService(store Store, cls StateClassifier, gate ConsentGate, tpls TemplateSource, gw Gateway) *Service {
	log := logger.New("development")
	dispatcher := NewDispatcher(gw, 24*time.Hour, "en", log)
	delays := []time.Duration{0, 0, 0, 0} // immediate for tests
	return NewService(store, cls, gate, tpls, dispatcher, nil, log, delays, 4, 2)
}

func seedLead(store *memStore) repository.Lead {
	lead := repository.Lead{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Phone:    "+6591234567",
		FullName: "Jordan Lim",
	}
	store.addLead(lead)
	return lead
}

func TestInitializeFollowUpSupersedesActiveChain(t *testing.T) {
	store := newMemStore()
	lead := seedLead(store)
	stateID := store.addState("budget_concerns")
	svc := newTestService(store, &fakeClassifier{stateID: stateID, state: classifier.StateBudgetConcerns}, &fakeConsent{allowed: true}, &fakeTemplates{}, &fakeGateway{})

	in := InitializeInput{LeadID: lead.ID, ConversationID: uuid.New(), TenantID: lead.TenantID}

	first, err := svc.InitializeFollowUp(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Scheduled {
		t.Fatal("expected first chain to be scheduled")
	}

	second, err := svc.InitializeFollowUp(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Scheduled {
		t.Fatal("expected second chain to be scheduled")
	}

	if n := store.activeCount(lead.ID); n != 1 {
		t.Fatalf("expected exactly one active chain, got %d", n)
	}
	old, _ := store.Get(context.Background(), first.SequenceID)
	if old.Status != repository.StatusCancelled || old.CancelledReason == nil || *old.CancelledReason != ReasonSuperseded {
		t.Fatalf("expected first chain cancelled as superseded, got %s", old.Status)
	}
}

func TestInitializeFollowUpBlockedByConsent(t *testing.T) {
	store := newMemStore()
	lead := seedLead(store)
	stateID := store.addState("default")
	svc := newTestService(store, &fakeClassifier{stateID: stateID, state: classifier.StateDefault}, &fakeConsent{allowed: false, reason: "no consent record"}, &fakeTemplates{}, &fakeGateway{})

	out, err := svc.InitializeFollowUp(context.Background(), InitializeInput{
		LeadID: lead.ID, ConversationID: uuid.New(), TenantID: lead.TenantID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Scheduled {
		t.Fatal("expected blocked consent to prevent scheduling")
	}
	if out.Reason != "no consent record" {
		t.Fatalf("expected consent reason, got %q", out.Reason)
	}
	if n := store.activeCount(lead.ID); n != 0 {
		t.Fatalf("expected no chains, got %d", n)
	}
}

func TestInitializeFollowUpUnknownLead(t *testing.T) {
	store := newMemStore()
	stateID := store.addState("default")
	svc := newTestService(store, &fakeClassifier{stateID: stateID, state: classifier.StateDefault}, &fakeConsent{allowed: true}, &fakeTemplates{}, &fakeGateway{})

	_, err := svc.InitializeFollowUp(context.Background(), InitializeInput{
		LeadID: uuid.New(), ConversationID: uuid.New(), TenantID: uuid.New(),
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestOptOutCancelsAndBlocksReinitialization(t *testing.T) {
	store := newMemStore()
	lead := seedLead(store)
	stateID := store.addState("still_looking")
	gate := &fakeConsent{allowed: true}
	svc := newTestService(store, &fakeClassifier{stateID: stateID, state: classifier.StateStillLooking}, gate, &fakeTemplates{}, &fakeGateway{})

	in := InitializeInput{LeadID: lead.ID, ConversationID: uuid.New(), TenantID: lead.TenantID}
	if _, err := svc.InitializeFollowUp(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	out, err := svc.HandleLeadResponse(context.Background(), lead.ID, lead.TenantID, "STOP")
	if err != nil {
		t.Fatal(err)
	}
	if !out.OptOut || !out.Cancelled {
		t.Fatalf("expected opt-out cancellation, got %+v", out)
	}
	if n := store.activeCount(lead.ID); n != 0 {
		t.Fatalf("expected no active chains after opt-out, got %d", n)
	}

	// A later conversation must not schedule anything until consent returns.
	blocked, err := svc.InitializeFollowUp(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if blocked.Scheduled {
		t.Fatal("expected re-initialization to be blocked after opt-out")
	}

	gate.allowed = true // consent re-granted
	again, err := svc.InitializeFollowUp(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Scheduled {
		t.Fatal("expected scheduling after consent re-grant")
	}
}

func TestLeadResponseCancelsAsReEngaged(t *testing.T) {
	store := newMemStore()
	lead := seedLead(store)
	stateID := store.addState("default")
	svc := newTestService(store, &fakeClassifier{stateID: stateID, state: classifier.StateDefault}, &fakeConsent{allowed: true}, &fakeTemplates{}, &fakeGateway{})

	first, err := svc.InitializeFollowUp(context.Background(), InitializeInput{
		LeadID: lead.ID, ConversationID: uuid.New(), TenantID: lead.TenantID,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := svc.HandleLeadResponse(context.Background(), lead.ID, lead.TenantID, "Yes, I'd love the floor plan")
	if err != nil {
		t.Fatal(err)
	}
	if out.OptOut {
		t.Fatal("a normal reply is not an opt-out")
	}
	if !out.Cancelled {
		t.Fatal("expected active chain to be cancelled")
	}

	entry, _ := store.Get(context.Background(), first.SequenceID)
	if entry.CancelledReason == nil || *entry.CancelledReason != ReasonReEngaged {
		t.Fatal("expected lead_re_engaged cancellation reason")
	}
}

func TestFourStageHappyPath(t *testing.T) {
	store := newMemStore()
	lead := seedLead(store)
	stateID := store.addState("timing_not_right")
	tpls := &fakeTemplates{}
	gw := &fakeGateway{}
	svc := newTestService(store, &fakeClassifier{stateID: stateID, state: classifier.StateTimingNotRight}, &fakeConsent{allowed: true}, tpls, gw)

	init, err := svc.InitializeFollowUp(context.Background(), InitializeInput{
		LeadID: lead.ID, ConversationID: uuid.New(), TenantID: lead.TenantID,
	})
	if err != nil {
		t.Fatal(err)
	}

	for round := 1; round <= 4; round++ {
		processed, err := svc.ProcessDue(context.Background(), 10)
		if err != nil {
			t.Fatal(err)
		}
		if processed != 1 {
			t.Fatalf("round %d: expected 1 claimed entry, got %d", round, processed)
		}
	}

	entry, _ := store.Get(context.Background(), init.SequenceID)
	if entry.Status != repository.StatusSent {
		t.Fatalf("expected sent after 4 stages, got %s", entry.Status)
	}
	if entry.SequenceStage != 4 {
		t.Fatalf("expected final stage 4, got %d", entry.SequenceStage)
	}
	if len(store.tracking) != 4 {
		t.Fatalf("expected 4 tracking rows, got %d", len(store.tracking))
	}
	for i, tr := range store.tracking {
		if tr.Stage != i+1 {
			t.Fatalf("tracking row %d has stage %d", i, tr.Stage)
		}
		if tr.Outcome != "delivered" {
			t.Fatalf("tracking row %d outcome %s", i, tr.Outcome)
		}
	}
	// Selection saw the stages in order, driving the category progression.
	if len(tpls.stages) != 4 {
		t.Fatalf("expected 4 selections, got %d", len(tpls.stages))
	}
	if gw.sends != 4 {
		t.Fatalf("expected 4 gateway sends, got %d", gw.sends)
	}
}

func TestDispatchFailureMarksFailedWithoutRetry(t *testing.T) {
	store := newMemStore()
	lead := seedLead(store)
	stateID := store.addState("default")
	svc := newTestService(store, &fakeClassifier{stateID: stateID, state: classifier.StateDefault}, &fakeConsent{allowed: true}, &fakeTemplates{}, &fakeGateway{fail: true})

	init, err := svc.InitializeFollowUp(context.Background(), InitializeInput{
		LeadID: lead.ID, ConversationID: uuid.New(), TenantID: lead.TenantID,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ProcessDue(context.Background(), 10); err != nil {
		t.Fatal(err)
	}

	entry, _ := store.Get(context.Background(), init.SequenceID)
	if entry.Status != repository.StatusFailed {
		t.Fatalf("expected failed, got %s", entry.Status)
	}
	if entry.DeliveryError == nil || *entry.DeliveryError != "gateway unavailable" {
		t.Fatal("expected delivery error to be recorded")
	}
	if len(store.tracking) != 1 || store.tracking[0].Outcome != "failed" {
		t.Fatalf("expected one failed tracking row, got %+v", store.tracking)
	}

	// No retry: nothing left to claim.
	processed, err := svc.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if processed != 0 {
		t.Fatalf("expected nothing due after terminal failure, got %d", processed)
	}
}

func TestCancellationWinsOverClaimedEntry(t *testing.T) {
	store := newMemStore()
	lead := seedLead(store)
	stateID := store.addState("default")
	gw := &fakeGateway{}
	svc := newTestService(store, &fakeClassifier{stateID: stateID, state: classifier.StateDefault}, &fakeConsent{allowed: true}, &fakeTemplates{}, gw)

	init, err := svc.InitializeFollowUp(context.Background(), InitializeInput{
		LeadID: lead.ID, ConversationID: uuid.New(), TenantID: lead.TenantID,
	})
	if err != nil {
		t.Fatal(err)
	}

	claimed, err := store.ClaimDue(context.Background(), 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("expected one claim, got %d (%v)", len(claimed), err)
	}
	// Lead replies between claim and dispatch.
	if err := store.CancelActive(context.Background(), lead.ID, ReasonReEngaged); err != nil {
		t.Fatal(err)
	}

	if err := svc.ProcessClaimed(context.Background(), claimed[0]); err != nil {
		t.Fatal(err)
	}
	if gw.sends != 0 {
		t.Fatalf("expected no send after cancellation, got %d", gw.sends)
	}
	entry, _ := store.Get(context.Background(), init.SequenceID)
	if entry.Status != repository.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", entry.Status)
	}
}

func TestStoreFailureAfterDispatchDoesNotResend(t *testing.T) {
	store := newMemStore()
	lead := seedLead(store)
	stateID := store.addState("default")
	gw := &fakeGateway{}
	svc := newTestService(store, &fakeClassifier{stateID: stateID, state: classifier.StateDefault}, &fakeConsent{allowed: true}, &fakeTemplates{}, gw)

	init, err := svc.InitializeFollowUp(context.Background(), InitializeInput{
		LeadID: lead.ID, ConversationID: uuid.New(), TenantID: lead.TenantID,
	})
	if err != nil {
		t.Fatal(err)
	}

	claimed, err := store.ClaimDue(context.Background(), 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("expected one claim, got %d (%v)", len(claimed), err)
	}

	// The store goes away between the send and the stage transition.
	store.failSchedule = 1
	if err := svc.ProcessClaimed(context.Background(), claimed[0]); err != nil {
		t.Fatalf("post-dispatch store failure must not surface as a retryable error: %v", err)
	}
	if gw.sends != 1 {
		t.Fatalf("expected 1 send, got %d", gw.sends)
	}
	entry, _ := store.Get(context.Background(), init.SequenceID)
	if entry.Status != repository.StatusProcessing {
		t.Fatalf("expected entry to stay claimed for the stale sweep, got %s", entry.Status)
	}

	// The next attempt finds the delivered row and only finishes the
	// transition, it never sends the stage again.
	if err := svc.ProcessClaimed(context.Background(), claimed[0]); err != nil {
		t.Fatal(err)
	}
	if gw.sends != 1 {
		t.Fatalf("stage 1 was dispatched %d times", gw.sends)
	}
	entry, _ = store.Get(context.Background(), init.SequenceID)
	if entry.Status != repository.StatusPending || entry.SequenceStage != 2 {
		t.Fatalf("expected chain advanced to pending stage 2, got %s stage %d", entry.Status, entry.SequenceStage)
	}
}

// wrapErrStore adds caller context to store errors, the way a decorated
// repository would.
type wrapErrStore struct {
	*memStore
}

func (w *wrapErrStore) ActiveEntry(ctx context.Context, leadID uuid.UUID) (repository.Entry, error) {
	e, err := w.memStore.ActiveEntry(ctx, leadID)
	if err != nil {
		return e, fmt.Errorf("active entry: %w", err)
	}
	return e, nil
}

func TestWrappedNotFoundTreatedAsNoActiveChain(t *testing.T) {
	store := newMemStore()
	lead := seedLead(store)
	svc := newTestService(&wrapErrStore{store}, &fakeClassifier{}, &fakeConsent{allowed: true}, &fakeTemplates{}, &fakeGateway{})

	out, err := svc.HandleLeadResponse(context.Background(), lead.ID, lead.TenantID, "hello again")
	if err != nil {
		t.Fatalf("wrapped not-found must read as no active chain, got %v", err)
	}
	if out.Cancelled || out.OptOut {
		t.Fatalf("expected a no-op outcome, got %+v", out)
	}
}
