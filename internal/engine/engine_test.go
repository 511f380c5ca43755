package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"contractdesk/internal/config"
	"contractdesk/internal/db"
	"contractdesk/internal/domain"
	"contractdesk/internal/engine"
	"contractdesk/internal/engine/authz"
	"contractdesk/internal/migrate"
	"contractdesk/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

// newTestEnv builds a workspace with one actor per role. The admin is created
// first to satisfy bootstrap, every other actor is created by the admin.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("test"))
	eng.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	actors := []engine.ActorCreateOptions{
		{ID: "adm", DisplayName: "Admin", Role: domain.RoleAdmin},
		{ID: "own", DisplayName: "Owner", Role: domain.RoleOwner, ActorID: "adm"},
		{ID: "exe", DisplayName: "Executor", Role: domain.RoleExecutor, ActorID: "adm"},
		{ID: "exe2", DisplayName: "Second Executor", Role: domain.RoleExecutor, ActorID: "adm"},
		{ID: "lead", DisplayName: "Settlement Lead", Role: domain.RoleSettlementLead, ActorID: "adm"},
		{ID: "sx", DisplayName: "Settlement Executor", Role: domain.RoleSettlementExecutor, ActorID: "adm"},
	}
	for _, a := range actors {
		if _, err := eng.CreateActor(ctx, a); err != nil {
			t.Fatalf("create actor %s: %v", a.ID, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) createContract(t *testing.T, opts engine.ContractCreateOptions) domain.Contract {
	t.Helper()
	if opts.ActorID == "" {
		opts.ActorID = "own"
	}
	c, err := env.Engine.CreateContract(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	return c
}

func (env testEnv) unread(t *testing.T, recipient string) []domain.Notification {
	t.Helper()
	ns, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{RecipientID: recipient, UnreadOnly: true})
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return ns
}

func TestCreateContractClassificationExclusive(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateContract(env.Ctx, engine.ContractCreateOptions{
		ContractNumber:           "X-1",
		IsFrameworkContract:      true,
		IsConstructionInvestment: true,
		ActorID:                  "own",
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestCreateContractDuplicateNumber(t *testing.T) {
	env := newTestEnv(t)
	env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HDK-2024-001"})
	_, err := env.Engine.CreateContract(env.Ctx, engine.ContractCreateOptions{ContractNumber: "HDK-2024-001", ActorID: "own"})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "contract_number" {
		t.Fatalf("err = %v, want duplicate contract_number error", err)
	}
}

func TestCreateContractRequiresOwnerOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateContract(env.Ctx, engine.ContractCreateOptions{ContractNumber: "X-2", ActorID: "exe"})
	var fe authz.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want ForbiddenError", err)
	}
}

func TestFrameworkContractGetsPlaceholderNumber(t *testing.T) {
	env := newTestEnv(t)
	fw := "RK-2024-07"
	c := env.createContract(t, engine.ContractCreateOptions{
		FrameworkContractNumber: &fw,
		IsFrameworkContract:     true,
	})
	if c.ContractNumber == "" {
		t.Fatal("expected generated contract number")
	}
	if c.FrameworkContractNumber == nil || *c.FrameworkContractNumber != fw {
		t.Fatalf("framework number = %v", c.FrameworkContractNumber)
	}
}

func TestUpdateSilentlyDropsFieldsOutsideRole(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-001", ExecutorID: strp("exe")})

	// The executor fills delivery fields and sneaks in a settlement value.
	updated, decision, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{
		"delivered_value":  900000.0,
		"settlement_value": 1.0,
	}, "exe")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DeliveredValue == nil || *updated.DeliveredValue != 900000.0 {
		t.Fatalf("delivered_value = %v", updated.DeliveredValue)
	}
	if updated.SettlementValue != nil {
		t.Fatal("settlement_value must be dropped for executor")
	}
	if len(decision.Applied) != 1 || len(decision.Ignored) != 1 || decision.Ignored[0] != "settlement_value" {
		t.Fatalf("decision = %+v", decision)
	}
}

func TestUpdateRejectsActorWithoutAuthority(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-002"})
	_, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"delivered_value": 1.0}, "exe")
	var fe authz.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want ForbiddenError for unassigned executor", err)
	}
}

func TestUpdateRejectsUnknownField(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-003"})
	_, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"contract_number": "HD-999"}, "own")
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError for immutable field", err)
	}
}

func TestExecutorUpdateNotifiesOwnersAndAdmins(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-004", ExecutorID: strp("exe")})
	// Drain the initial assignment notification.
	if _, err := env.Engine.Repo.MarkAllNotificationsRead(env.Ctx, "exe"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if _, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"delivered_value": 10.0}, "exe"); err != nil {
		t.Fatalf("update: %v", err)
	}
	for _, recipient := range []string{"own", "adm"} {
		found := false
		for _, n := range env.unread(t, recipient) {
			if n.Type == domain.NotifyContractUpdated {
				found = true
			}
		}
		if !found {
			t.Errorf("recipient %s: no contract_updated notification", recipient)
		}
	}
	if len(env.unread(t, "exe")) != 0 {
		t.Fatal("acting executor must not notify itself")
	}
}

func TestOwnerUpdateEmitsNoBroadcast(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-005"})
	if _, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"title": "Roof repair"}, "own"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := env.unread(t, "adm"); len(n) != 0 {
		t.Fatalf("admin notifications = %d, want 0 for owner edits", len(n))
	}
}

func TestReassignExecutorNotifiesBothSides(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-006", ExecutorID: strp("exe")})
	// Drain the initial assignment notification.
	if _, err := env.Engine.Repo.MarkAllNotificationsRead(env.Ctx, "exe"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	updated, err := env.Engine.ReassignExecutor(env.Ctx, c.ID, "exe2", "own")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if updated.ExecutorID == nil || *updated.ExecutorID != "exe2" {
		t.Fatalf("executor = %v", updated.ExecutorID)
	}
	assigned := env.unread(t, "exe2")
	if len(assigned) != 1 || assigned[0].Type != domain.NotifyAssignedExecution {
		t.Fatalf("new executor notifications = %+v", assigned)
	}
	released := env.unread(t, "exe")
	if len(released) != 1 || released[0].Type != domain.NotifyReleasedExecution {
		t.Fatalf("old executor notifications = %+v", released)
	}
}

func TestReassignSameExecutorIsNoop(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-007", ExecutorID: strp("exe")})
	if _, err := env.Engine.Repo.MarkAllNotificationsRead(env.Ctx, "exe"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if _, err := env.Engine.ReassignExecutor(env.Ctx, c.ID, "exe", "own"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if n := env.unread(t, "exe"); len(n) != 0 {
		t.Fatalf("notifications = %d, want none for same-assignee reassign", len(n))
	}
}

func TestReassignExecutorRequiresIssuerOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-008"})
	var fe authz.ForbiddenError
	if _, err := env.Engine.ReassignExecutor(env.Ctx, c.ID, "exe", "exe2"); !errors.As(err, &fe) {
		t.Fatalf("err = %v, want ForbiddenError for executor caller", err)
	}
	if _, err := env.Engine.ReassignExecutor(env.Ctx, c.ID, "exe", "adm"); err != nil {
		t.Fatalf("admin reassign: %v", err)
	}
}

func TestReassignExecutorRejectsWrongRoleTarget(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-009"})
	var fe authz.ForbiddenError
	if _, err := env.Engine.ReassignExecutor(env.Ctx, c.ID, "lead", "own"); !errors.As(err, &fe) {
		t.Fatalf("err = %v, want ForbiddenError for non-executor target", err)
	}
}

func TestReassignBySettlementLeadGatedOnPayment(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-009B", ExecutorID: strp("exe")})

	// Before payment approval the lead gets invalid state no matter what the
	// target is, even one whose role could never match.
	var ise engine.InvalidStateError
	if _, err := env.Engine.ReassignExecutor(env.Ctx, c.ID, "sx", "lead"); !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStateError before payment approval", err)
	}
	if _, err := env.Engine.ReassignExecutor(env.Ctx, c.ID, "exe2", "lead"); !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStateError regardless of target role", err)
	}

	if _, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"payment_approval_date": "2024-05-01"}, "adm"); err != nil {
		t.Fatalf("approve payment: %v", err)
	}
	var fe authz.ForbiddenError
	if _, err := env.Engine.ReassignExecutor(env.Ctx, c.ID, "exe2", "lead"); !errors.As(err, &fe) {
		t.Fatalf("err = %v, want ForbiddenError for executor target", err)
	}
	updated, err := env.Engine.ReassignExecutor(env.Ctx, c.ID, "sx", "lead")
	if err != nil {
		t.Fatalf("lead reassign after approval: %v", err)
	}
	if updated.SettlementHandlerID == nil || *updated.SettlementHandlerID != "sx" {
		t.Fatalf("settlement handler = %v", updated.SettlementHandlerID)
	}
	if updated.ExecutorID == nil || *updated.ExecutorID != "exe" {
		t.Fatalf("executor = %v, want untouched", updated.ExecutorID)
	}
	assigned := env.unread(t, "sx")
	if len(assigned) != 1 || assigned[0].Type != domain.NotifySettlementAssigned {
		t.Fatalf("handler notifications = %+v", assigned)
	}
}

func TestAssignSettlementHandlerRequiresPaymentApproval(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "BI-001", IsConstructionInvestment: true})
	var ise engine.InvalidStateError
	if _, err := env.Engine.AssignSettlementHandler(env.Ctx, c.ID, "sx", "lead"); !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStateError before payment approval", err)
	}

	if _, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"payment_approval_date": "2024-05-01"}, "adm"); err != nil {
		t.Fatalf("approve payment: %v", err)
	}
	updated, err := env.Engine.AssignSettlementHandler(env.Ctx, c.ID, "sx", "lead")
	if err != nil {
		t.Fatalf("assign after approval: %v", err)
	}
	if updated.SettlementHandlerID == nil || *updated.SettlementHandlerID != "sx" {
		t.Fatalf("settlement handler = %v", updated.SettlementHandlerID)
	}
	assigned := env.unread(t, "sx")
	if len(assigned) != 1 || assigned[0].Type != domain.NotifySettlementAssigned {
		t.Fatalf("handler notifications = %+v", assigned)
	}
}

func TestAdminBypassesPaymentGateButNotCategory(t *testing.T) {
	env := newTestEnv(t)
	construction := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "BI-002", IsConstructionInvestment: true})
	if _, err := env.Engine.AssignSettlementHandler(env.Ctx, construction.ID, "sx", "adm"); err != nil {
		t.Fatalf("admin assign without payment approval: %v", err)
	}

	ordinary := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-010"})
	var ise engine.InvalidStateError
	if _, err := env.Engine.AssignSettlementHandler(env.Ctx, ordinary.ID, "sx", "adm"); !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStateError for ordinary contract", err)
	}
}

// Writing the handler reference through a partial update and through the
// assignment operation must enforce the same preconditions.
func TestSettlementHandlerPathsAgree(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "BI-003", IsConstructionInvestment: true})

	var ise engine.InvalidStateError
	_, err := env.Engine.AssignSettlementHandler(env.Ctx, c.ID, "sx", "lead")
	if !errors.As(err, &ise) {
		t.Fatalf("assign op: %v, want InvalidStateError", err)
	}
	_, _, err = env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"settlement_handler_id": "sx"}, "lead")
	if !errors.As(err, &ise) {
		t.Fatalf("update path: %v, want the same InvalidStateError gate", err)
	}

	var ve engine.ValidationError
	if _, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"settlement_handler_id": "exe"}, "adm"); !errors.As(err, &ve) {
		t.Fatalf("update path: %v, want ValidationError for non-settlement-executor target", err)
	}
}

func TestSettledContractIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "BI-004", IsConstructionInvestment: true})
	if _, err := env.Engine.AssignSettlementHandler(env.Ctx, c.ID, "sx", "adm"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	updated, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{
		"settlement_value": 500000.0,
		"is_settled":       true,
	}, "sx")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !updated.IsSettled || updated.SettlementCompletedAt == nil {
		t.Fatalf("contract not marked settled: %+v", updated)
	}

	// Settlement fields are locked from here on, even for the handler.
	after, decision, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"settlement_value": 1.0}, "sx")
	if err != nil {
		t.Fatalf("post-settle update: %v", err)
	}
	if len(decision.Applied) != 0 || len(decision.Ignored) != 1 {
		t.Fatalf("decision = %+v, want settlement_value ignored", decision)
	}
	if *after.SettlementValue != 500000.0 {
		t.Fatalf("settlement_value = %v, changed after settlement", *after.SettlementValue)
	}
}

func TestDeleteContractAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-011"})
	var fe authz.ForbiddenError
	if err := env.Engine.DeleteContract(env.Ctx, c.ID, "own"); !errors.As(err, &fe) {
		t.Fatalf("err = %v, want ForbiddenError for owner delete", err)
	}
	if err := env.Engine.DeleteContract(env.Ctx, c.ID, "adm"); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetContract(env.Ctx, c.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestDeleteActorBlockedWhileAssigned(t *testing.T) {
	env := newTestEnv(t)
	env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-012", ExecutorID: strp("exe")})
	var ise engine.InvalidStateError
	if err := env.Engine.DeleteActor(env.Ctx, "exe", "adm"); !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStateError while assigned", err)
	}
	if err := env.Engine.DeleteActor(env.Ctx, "exe2", "adm"); err != nil {
		t.Fatalf("delete unassigned actor: %v", err)
	}
}

func TestIssueAPIKeyClearsRotationFlag(t *testing.T) {
	env := newTestEnv(t)
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.SetMustRotateCredential(env.Ctx, tx, "exe", true); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	key, raw, err := env.Engine.IssueAPIKey(env.Ctx, "exe", "laptop", "exe")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if raw == "" || key.KeyHash != repo.HashAPIKey(raw) {
		t.Fatal("stored hash does not match returned key")
	}
	a, err := env.Engine.Repo.GetActor(env.Ctx, "exe")
	if err != nil {
		t.Fatal(err)
	}
	if a.MustRotateCredential {
		t.Fatal("rotation flag not cleared")
	}

	var fe authz.ForbiddenError
	if _, _, err := env.Engine.IssueAPIKey(env.Ctx, "own", "sneaky", "exe"); !errors.As(err, &fe) {
		t.Fatalf("err = %v, want ForbiddenError issuing for someone else", err)
	}
}

func TestContractSummaryCountsStates(t *testing.T) {
	env := newTestEnv(t)
	env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-013"})
	env.createContract(t, engine.ContractCreateOptions{
		ContractNumber: "HD-014",
		Title:          strp("Roof repair"),
		ContractValue:  f64p(125000),
		SignedDate:     strp("2024-03-01"),
		ExecutorID:     strp("exe"),
	})
	s, err := env.Engine.ContractSummary(env.Ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.Total != 2 || s.States[domain.StateUnfilled] != 1 || s.States[domain.StateNew] != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if s.Workload["exe"] != 1 {
		t.Fatalf("expected workload 1 for exe, got %+v", s.Workload)
	}
}

// TestMaintenanceContractLifecycle walks an ordinary contract from issue to
// warranty through role-correct hands.
func TestMaintenanceContractLifecycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{
		ContractNumber: "HD-001",
		Title:          strp("Heating maintenance"),
		ContractValue:  f64p(1000000),
		SignedDate:     strp("2024-01-10"),
		ExecutorID:     strp("exe"),
	})
	now := env.Engine.Now()
	if got := domain.Status(c, now); got != domain.StateNew {
		t.Fatalf("status = %s, want new", got)
	}
	c, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"delivered_value": 1000000.0}, "exe")
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got := domain.Status(c, now); got != domain.StateInDelivery {
		t.Fatalf("status = %s, want in_delivery", got)
	}
	c, _, err = env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"accepted_value": 1000000.0}, "exe")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got := domain.Status(c, now); got != domain.StateAccepted {
		t.Fatalf("status = %s, want accepted", got)
	}
	c, _, err = env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{
		"payment_approval_date": "2024-05-20",
		"warranty_expiry_date":  "2026-05-20",
	}, "adm")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := domain.Status(c, now); got != domain.StateUnderWarranty {
		t.Fatalf("status = %s, want under_warranty", got)
	}
}

// TestConstructionSettlementLifecycle walks a construction-investment
// contract through payment approval, handler assignment and settlement.
func TestConstructionSettlementLifecycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{
		ContractNumber:           "BI-2024-05",
		IsConstructionInvestment: true,
		Title:                    strp("Substation build-out"),
		ContractValue:            f64p(4800000),
		SignedDate:               strp("2024-02-01"),
		ExecutorID:               strp("exe"),
	})
	if _, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"payment_approval_date": "2024-05-01"}, "adm"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.Engine.AssignSettlementHandler(env.Ctx, c.ID, "sx", "lead"); err != nil {
		t.Fatalf("assign handler: %v", err)
	}
	c, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{
		"settlement_value":         4750000.0,
		"cumulative_payment_value": 4750000.0,
		"settlement_date":          "2024-06-01",
		"is_settled":               true,
	}, "sx")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := domain.Status(c, env.Engine.Now()); got != domain.StateSettled {
		t.Fatalf("status = %s, want settled", got)
	}
	// Settlement executor edits reach the settlement lead.
	found := false
	for _, n := range env.unread(t, "lead") {
		if n.Type == domain.NotifyContractUpdated {
			found = true
		}
	}
	if !found {
		t.Fatal("settlement lead did not receive contract_updated")
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-015"})
	if _, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"title": "x"}, "own"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ReassignExecutor(env.Ctx, c.ID, "exe", "own"); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", "contract", c.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) < 3 {
		t.Fatalf("events = %d, want create, update and reassign", len(events))
	}
}

// TestNotificationDeliveryAppendsEvent checks that every delivered
// notification leaves a notification.created event behind, which is what the
// push dispatcher forwards to configured endpoints.
func TestNotificationDeliveryAppendsEvent(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{ContractNumber: "HD-016"})
	if _, err := env.Engine.ReassignExecutor(env.Ctx, c.ID, "exe", "own"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "notification.created", "notification", "")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("notification.created events = %d, want 1", len(evts))
	}
	var payload struct {
		RecipientID string `json:"recipient_id"`
		Type        string `json:"type"`
	}
	if err := json.Unmarshal([]byte(evts[0].Payload), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.RecipientID != "exe" || payload.Type != string(domain.NotifyAssignedExecution) {
		t.Fatalf("payload = %+v", payload)
	}
}

// TestWorkflowStateCanRegress documents that the derived state is not
// monotonic: clearing a value moves the contract back to an earlier stage.
func TestWorkflowStateCanRegress(t *testing.T) {
	env := newTestEnv(t)
	c := env.createContract(t, engine.ContractCreateOptions{
		ContractNumber: "HD-017",
		Title:          strp("Cable delivery"),
		ContractValue:  f64p(120000),
		SignedDate:     strp("2024-03-01"),
	})
	c, _, err := env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{
		"delivered_value": 120000.0,
		"accepted_value":  118000.0,
	}, "adm")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := domain.Status(c, env.Engine.Now()); got != domain.StateAccepted {
		t.Fatalf("status = %s, want accepted", got)
	}
	c, _, err = env.Engine.UpdateContract(env.Ctx, c.ID, authz.Patch{"accepted_value": nil}, "adm")
	if err != nil {
		t.Fatalf("clear accepted_value: %v", err)
	}
	if got := domain.Status(c, env.Engine.Now()); got != domain.StateInDelivery {
		t.Fatalf("status = %s, want in_delivery after clearing accepted value", got)
	}
}

func strp(s string) *string   { return &s }
func f64p(f float64) *float64 { return &f }
