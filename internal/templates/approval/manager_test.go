package approval

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/apperr"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
)

type fakeStore struct {
	rows map[uuid.UUID]*repository.Template // by template id
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[uuid.UUID]*repository.Template)}
}

func (s *fakeStore) seed(tenantID uuid.UUID, name, status, externalRef string) *repository.Template {
	tpl := &repository.Template{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Name:           name,
		ApprovalStatus: status,
	}
	if externalRef != "" {
		tpl.ExternalRef = &externalRef
	}
	s.rows[tpl.ID] = tpl
	return tpl
}

func (s *fakeStore) NamesByTenant(_ context.Context, tenantID uuid.UUID) (map[string]struct{}, error) {
	names := make(map[string]struct{})
	for _, tpl := range s.rows {
		if tpl.TenantID == tenantID {
			names[tpl.Name] = struct{}{}
		}
	}
	return names, nil
}

func (s *fakeStore) Create(_ context.Context, p repository.CreateParams) (repository.Template, error) {
	tpl := &repository.Template{
		ID:             uuid.New(),
		TenantID:       p.TenantID,
		Name:           p.Name,
		Category:       p.Category,
		LeadState:      p.LeadState,
		Content:        p.Content,
		ApprovalStatus: p.ApprovalStatus,
	}
	s.rows[tpl.ID] = tpl
	return *tpl, nil
}

func (s *fakeStore) MarkSubmitted(_ context.Context, id uuid.UUID, externalRef string) error {
	tpl := s.rows[id]
	tpl.ApprovalStatus = repository.StatusPending
	tpl.ExternalRef = &externalRef
	return nil
}

func (s *fakeStore) PendingApproval(_ context.Context, tenantID uuid.UUID) ([]repository.Template, error) {
	var out []repository.Template
	for _, tpl := range s.rows {
		if tpl.TenantID == tenantID && tpl.ApprovalStatus == repository.StatusPending && tpl.ExternalRef != nil {
			out = append(out, *tpl)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateApprovalStatus(_ context.Context, id uuid.UUID, status string, reason *string) error {
	tpl := s.rows[id]
	tpl.ApprovalStatus = status
	tpl.RejectionReason = reason
	return nil
}

func (s *fakeStore) ApprovedByTenant(_ context.Context, tenantID uuid.UUID) ([]repository.Template, error) {
	var out []repository.Template
	for _, tpl := range s.rows {
		if tpl.TenantID == tenantID && tpl.ApprovalStatus == repository.StatusApproved {
			out = append(out, *tpl)
		}
	}
	return out, nil
}

func (s *fakeStore) ApprovalStatistics(_ context.Context, tenantID uuid.UUID) ([]repository.StatusCount, error) {
	counts := make(map[[2]string]int)
	for _, tpl := range s.rows {
		if tpl.TenantID == tenantID {
			counts[[2]string{tpl.Category, tpl.ApprovalStatus}]++
		}
	}
	var out []repository.StatusCount
	for key, n := range counts {
		out = append(out, repository.StatusCount{Category: key[0], Status: key[1], Count: n})
	}
	return out, nil
}

func (s *fakeStore) ByName(_ context.Context, tenantID uuid.UUID, name string) (repository.Template, error) {
	for _, tpl := range s.rows {
		if tpl.TenantID == tenantID && tpl.Name == name {
			return *tpl, nil
		}
	}
	return repository.Template{}, repository.ErrNotFound
}

type fakeAuthority struct {
	submissions []Submission
	verdicts    map[string]Verdict // by external ref
}

func (a *fakeAuthority) SubmitTemplate(_ context.Context, _ uuid.UUID, sub Submission) (SubmissionResult, error) {
	a.submissions = append(a.submissions, sub)
	return SubmissionResult{
		ExternalRef: fmt.Sprintf("ext-%d", len(a.submissions)),
		Status:      repository.StatusPending,
	}, nil
}

func (a *fakeAuthority) PollStatus(_ context.Context, _ uuid.UUID, externalRef string) (Verdict, error) {
	if v, ok := a.verdicts[externalRef]; ok {
		return v, nil
	}
	return Verdict{Status: repository.StatusPending}, nil
}

func newTestManager(store Store, authority Authority) *Manager {
	return NewManager(store, authority, nil, nil, logger.New("development"), "en")
}

func TestCheckAndEnsureApprovalSubmitsMissing(t *testing.T) {
	tenantID := uuid.New()
	store := newFakeStore()
	authority := &fakeAuthority{}
	manager := newTestManager(store, authority)

	report, err := manager.CheckAndEnsureApproval(context.Background(), tenantID)
	if err != nil {
		t.Fatal(err)
	}

	required := len(RequiredSet())
	if report.Submitted != required {
		t.Fatalf("expected %d submissions on an empty tenant, got %d", required, report.Submitted)
	}
	// High priority templates go out before the rest.
	if authority.submissions[0].Name != "followup_family_checkin" {
		t.Fatalf("expected high priority first, got %s", authority.submissions[0].Name)
	}

	// Second run submits nothing: everything is already pending.
	authority.submissions = nil
	report, err = manager.CheckAndEnsureApproval(context.Background(), tenantID)
	if err != nil {
		t.Fatal(err)
	}
	if report.Submitted != 0 {
		t.Fatalf("expected idempotent second run, got %d submissions", report.Submitted)
	}
}

func TestCheckAndEnsureApprovalPollsPending(t *testing.T) {
	tenantID := uuid.New()
	store := newFakeStore()
	names := RequiredNames()

	// 5 approved, 3 pending at the authority.
	for _, name := range names[:5] {
		store.seed(tenantID, name, repository.StatusApproved, "")
	}
	for i, name := range names[5:] {
		store.seed(tenantID, name, repository.StatusPending, fmt.Sprintf("pending-%d", i))
	}

	// One of the three pending comes back approved.
	authority := &fakeAuthority{verdicts: map[string]Verdict{
		"pending-0": {Status: repository.StatusApproved},
	}}
	manager := newTestManager(store, authority)

	report, err := manager.CheckAndEnsureApproval(context.Background(), tenantID)
	if err != nil {
		t.Fatal(err)
	}
	if report.Submitted != 0 {
		t.Fatalf("expected no submissions, got %d", report.Submitted)
	}
	if report.Updated != 1 {
		t.Fatalf("expected 1 status update, got %d", report.Updated)
	}

	cov, err := manager.RequiredCoverage(context.Background(), tenantID)
	if err != nil {
		t.Fatal(err)
	}
	if cov.Approved != 6 || cov.Required != 8 {
		t.Fatalf("expected coverage 6/8, got %d/%d", cov.Approved, cov.Required)
	}
}

func TestCheckAndEnsureApprovalRecordsRejection(t *testing.T) {
	tenantID := uuid.New()
	store := newFakeStore()
	tpl := store.seed(tenantID, "followup_generic_checkin", repository.StatusPending, "ref-1")

	authority := &fakeAuthority{verdicts: map[string]Verdict{
		"ref-1": {Status: repository.StatusRejected, Reason: "promotional wording"},
	}}
	manager := newTestManager(store, authority)

	if _, err := manager.CheckAndEnsureApproval(context.Background(), tenantID); err != nil {
		t.Fatal(err)
	}

	if tpl.ApprovalStatus != repository.StatusRejected {
		t.Fatalf("expected rejected, got %s", tpl.ApprovalStatus)
	}
	if tpl.RejectionReason == nil || *tpl.RejectionReason != "promotional wording" {
		t.Fatal("expected rejection reason to be recorded")
	}

	// Rejection is terminal: the next run must not resubmit it.
	report, err := manager.CheckAndEnsureApproval(context.Background(), tenantID)
	if err != nil {
		t.Fatal(err)
	}
	for _, sub := range authority.submissions {
		if sub.Name == "followup_generic_checkin" {
			t.Fatal("rejected template must not be auto-resubmitted")
		}
	}
	_ = report
}

func TestSyncTemplatesAcrossTenantsIsIdempotent(t *testing.T) {
	sourceID := uuid.New()
	targetA := uuid.New()
	targetB := uuid.New()

	store := newFakeStore()
	store.seed(sourceID, "followup_family_checkin", repository.StatusApproved, "")
	store.seed(sourceID, "followup_generic_checkin", repository.StatusApproved, "")
	store.seed(sourceID, "followup_draft_thing", repository.StatusDraft, "")
	// targetA already has one of the two approved names.
	store.seed(targetA, "followup_family_checkin", repository.StatusApproved, "")

	authority := &fakeAuthority{}
	manager := newTestManager(store, authority)

	submitted, err := manager.SyncTemplatesAcrossTenants(context.Background(), sourceID, []uuid.UUID{targetA, targetB})
	if err != nil {
		t.Fatal(err)
	}
	// targetA gets 1 (generic), targetB gets 2. Drafts are never synced.
	if submitted != 3 {
		t.Fatalf("expected 3 submissions, got %d", submitted)
	}
	if len(authority.submissions) != 3 {
		t.Fatalf("expected the authority to see 3 submissions, got %d", len(authority.submissions))
	}

	submitted, err = manager.SyncTemplatesAcrossTenants(context.Background(), sourceID, []uuid.UUID{targetA, targetB})
	if err != nil {
		t.Fatal(err)
	}
	if submitted != 0 {
		t.Fatalf("expected second sync to submit nothing, got %d", submitted)
	}
}

func TestSyncCopiesAwaitAuthorityVerdict(t *testing.T) {
	sourceID := uuid.New()
	targetID := uuid.New()

	store := newFakeStore()
	store.seed(sourceID, "followup_generic_checkin", repository.StatusApproved, "")

	authority := &fakeAuthority{}
	manager := newTestManager(store, authority)

	submitted, err := manager.SyncTemplatesAcrossTenants(context.Background(), sourceID, []uuid.UUID{targetID})
	if err != nil {
		t.Fatal(err)
	}
	if submitted != 1 || len(authority.submissions) != 1 {
		t.Fatalf("expected 1 authority submission, got %d (submitted=%d)", len(authority.submissions), submitted)
	}

	// The copy is pending at the authority, never locally approved.
	copyTpl, err := store.ByName(context.Background(), targetID, "followup_generic_checkin")
	if err != nil {
		t.Fatal(err)
	}
	if copyTpl.ApprovalStatus != repository.StatusPending {
		t.Fatalf("expected synced copy to be pending, got %s", copyTpl.ApprovalStatus)
	}
	if copyTpl.ExternalRef == nil {
		t.Fatal("expected synced copy to carry the authority reference")
	}

	// The target's selectable set stays empty until the verdict arrives.
	approved, err := store.ApprovedByTenant(context.Background(), targetID)
	if err != nil {
		t.Fatal(err)
	}
	if len(approved) != 0 {
		t.Fatalf("expected no approved templates in target before verdict, got %d", len(approved))
	}
}

func TestSyncTemplatesRejectsEmptySource(t *testing.T) {
	manager := newTestManager(newFakeStore(), &fakeAuthority{})

	_, err := manager.SyncTemplatesAcrossTenants(context.Background(), uuid.New(), []uuid.UUID{uuid.New()})
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request error, got %v", err)
	}
}
