package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"contractdesk/internal/config"
	"contractdesk/internal/domain"
	"contractdesk/internal/engine/authz"
	"contractdesk/internal/events"
	"contractdesk/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// --- actors ---

// ActorCreateOptions are parameters for registering an actor.
type ActorCreateOptions struct {
	ID          string
	DisplayName string
	Role        domain.Role
	ActorID     string
}

// CreateActor registers an actor. Only admins may do this, except for the
// very first actor of an empty workspace, which bootstraps the admin.
func (e Engine) CreateActor(ctx context.Context, opts ActorCreateOptions) (domain.Actor, error) {
	if strings.TrimSpace(opts.DisplayName) == "" {
		return domain.Actor{}, ValidationError{Field: "display_name", Reason: "is required"}
	}
	if !opts.Role.Valid() {
		return domain.Actor{}, ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", opts.Role)}
	}
	existing, err := e.Repo.ListActors(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if len(existing) == 0 {
		if opts.Role != domain.RoleAdmin {
			return domain.Actor{}, ValidationError{Field: "role", Reason: "the first actor must be an admin"}
		}
	} else {
		if err := e.requireAdmin(ctx, opts.ActorID); err != nil {
			return domain.Actor{}, err
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	a := domain.Actor{
		ID:          id,
		DisplayName: opts.DisplayName,
		Role:        opts.Role,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertActor(ctx, tx, a); err != nil {
		return domain.Actor{}, fmt.Errorf("insert actor: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "actor.created", "actor", a.ID, opts.ActorID, events.EventPayload{"role": a.Role}); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

// DeleteActor removes an actor. Blocked while any contract still references
// them, as issuer or assignee, so contract history stays attributable.
func (e Engine) DeleteActor(ctx context.Context, id, actorID string) error {
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	n, err := e.Repo.CountAssignments(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return InvalidStateError{Reason: fmt.Sprintf("actor is referenced by %d contract(s)", n)}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteActor(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "actor.deleted", "actor", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) requireAdmin(ctx context.Context, actorID string) error {
	a, err := e.Repo.GetActor(ctx, actorID)
	if err != nil {
		return err
	}
	if a.Role != domain.RoleAdmin {
		return authz.ForbiddenError{Reason: "admin role required"}
	}
	return nil
}

// IssueAPIKey mints a credential for the target actor and returns it once in
// clear text; only the hash is stored. Issuing a key clears the actor's
// rotation flag.
func (e Engine) IssueAPIKey(ctx context.Context, targetID, name, actorID string) (domain.APIKey, string, error) {
	if actorID != targetID {
		if err := e.requireAdmin(ctx, actorID); err != nil {
			return domain.APIKey{}, "", err
		}
	}
	if _, err := e.Repo.GetActor(ctx, targetID); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := "cdk_" + strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
	key := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   targetID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Repo.SetMustRotateCredential(ctx, tx, targetID, false); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.issued", "actor", targetID, actorID, events.EventPayload{"key_id": key.ID}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, raw, nil
}

// RevokeAPIKey deletes a credential. The key's owner or an admin may revoke.
func (e Engine) RevokeAPIKey(ctx context.Context, keyID, actorID string) error {
	var ownerID string
	err := e.DB.QueryRowContext(ctx, `SELECT actor_id FROM api_keys WHERE id=?`, keyID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return repo.ErrNotFound
	}
	if err != nil {
		return err
	}
	if ownerID != actorID {
		if err := e.requireAdmin(ctx, actorID); err != nil {
			return err
		}
	}
	return e.Repo.DeleteAPIKey(ctx, keyID)
}

// --- contracts ---

// ContractCreateOptions are parameters for issuing a contract.
type ContractCreateOptions struct {
	ID                       string
	ContractNumber           string
	FrameworkContractNumber  *string
	IsFrameworkContract      bool
	IsConstructionInvestment bool
	Title                    *string
	ContractValue            *float64
	SignedDate               *string
	ExecutorID               *string
	IssuedByID               string
	ActorID                  string
}

func (e Engine) CreateContract(ctx context.Context, opts ContractCreateOptions) (domain.Contract, error) {
	actor, err := e.Repo.GetActor(ctx, opts.ActorID)
	if err != nil {
		return domain.Contract{}, err
	}
	if actor.Role != domain.RoleOwner && actor.Role != domain.RoleAdmin {
		return domain.Contract{}, authz.ForbiddenError{Reason: "only an owner or admin may issue contracts"}
	}
	if opts.IsFrameworkContract && opts.IsConstructionInvestment {
		return domain.Contract{}, ValidationError{Field: "is_construction_investment", Reason: "a contract cannot be both framework and construction-investment"}
	}
	number := strings.TrimSpace(opts.ContractNumber)
	if number == "" {
		if !opts.IsFrameworkContract {
			return domain.Contract{}, ValidationError{Field: "contract_number", Reason: "is required"}
		}
		// Framework contracts are identified by their framework number; the
		// plain number is still unique so it gets a generated placeholder.
		number = "FW-" + uuid.New().String()[:8]
	}
	issuedBy := actor.ID
	if opts.IssuedByID != "" && opts.IssuedByID != actor.ID {
		if actor.Role != domain.RoleAdmin {
			return domain.Contract{}, authz.ForbiddenError{Reason: "only an admin may issue on behalf of another owner"}
		}
		issuer, err := e.Repo.GetActor(ctx, opts.IssuedByID)
		if err != nil {
			return domain.Contract{}, ValidationError{Field: "issued_by_id", Reason: "unknown actor"}
		}
		if issuer.Role != domain.RoleOwner {
			return domain.Contract{}, ValidationError{Field: "issued_by_id", Reason: "must reference an owner"}
		}
		issuedBy = issuer.ID
	}
	if opts.ExecutorID != nil {
		target, err := e.Repo.GetActor(ctx, *opts.ExecutorID)
		if err != nil {
			return domain.Contract{}, ValidationError{Field: "executor_id", Reason: "unknown actor"}
		}
		if target.Role != domain.RoleExecutor {
			return domain.Contract{}, ValidationError{Field: "executor_id", Reason: "must reference an executor"}
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	c := domain.Contract{
		ID:                      id,
		ContractNumber:          number,
		FrameworkContractNumber: opts.FrameworkContractNumber,
		IsFrameworkContract:     opts.IsFrameworkContract,
		IsConstructionInvest:    opts.IsConstructionInvestment,
		Title:                   opts.Title,
		ContractValue:           opts.ContractValue,
		SignedDate:              opts.SignedDate,
		ExecutorID:              opts.ExecutorID,
		IssuedByID:              issuedBy,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()
	exists, err := e.Repo.ContractNumberExists(ctx, tx, number)
	if err != nil {
		return domain.Contract{}, err
	}
	if !exists && c.FrameworkContractNumber != nil {
		exists, err = e.Repo.ContractNumberExists(ctx, tx, *c.FrameworkContractNumber)
		if err != nil {
			return domain.Contract{}, err
		}
	}
	if exists {
		return domain.Contract{}, ValidationError{Field: "contract_number", Reason: "already in use"}
	}
	if err := e.Repo.InsertContract(ctx, tx, c); err != nil {
		return domain.Contract{}, fmt.Errorf("insert contract: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "contract.created", "contract", c.ID, opts.ActorID, events.EventPayload{"contract_number": c.ContractNumber}); err != nil {
		return domain.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	if c.ExecutorID != nil {
		e.notifyAssignment(ctx, c, actor, nil, c.ExecutorID, domain.NotifyAssignedExecution, domain.NotifyReleasedExecution)
	}
	return c, nil
}

// UpdateContract applies a partial update. Fields outside the actor's
// authority are dropped, not rejected; the decision reports both sets.
func (e Engine) UpdateContract(ctx context.Context, id string, patch authz.Patch, actorID string) (domain.Contract, authz.Decision, error) {
	actor, err := e.Repo.GetActor(ctx, actorID)
	if err != nil {
		return domain.Contract{}, authz.Decision{}, err
	}
	for f := range patch {
		if !authz.KnownFields[f] {
			return domain.Contract{}, authz.Decision{}, ValidationError{Field: f, Reason: "unknown field"}
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contract{}, authz.Decision{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContractTx(ctx, tx, id)
	if err != nil {
		return domain.Contract{}, authz.Decision{}, err
	}
	filtered, decision, err := authz.Filter(actor, c, patch)
	if err != nil {
		return domain.Contract{}, authz.Decision{}, err
	}
	if v, ok := filtered[authz.FieldExecutor]; ok && v != nil {
		if err := e.checkExecutorTarget(ctx, tx, v); err != nil {
			return domain.Contract{}, authz.Decision{}, err
		}
	}
	if v, ok := filtered[authz.FieldSettlementHandler]; ok {
		if err := e.checkSettlementAssignment(ctx, tx, actor, c, v); err != nil {
			return domain.Contract{}, authz.Decision{}, err
		}
	}
	oldExecutor := c.ExecutorID
	oldHandler := c.SettlementHandlerID
	wasSettled := c.IsSettled
	if err := authz.Apply(&c, filtered); err != nil {
		return domain.Contract{}, authz.Decision{}, ValidationError{Reason: err.Error()}
	}
	now := e.now().UTC().Format(time.RFC3339)
	if c.IsSettled && !wasSettled {
		c.SettlementCompletedAt = &now
	}
	c.UpdatedAt = now
	if err := e.Repo.UpdateContract(ctx, tx, c); err != nil {
		return domain.Contract{}, authz.Decision{}, err
	}
	if len(decision.Applied) > 0 {
		if err := e.Events.Append(ctx, tx, "contract.updated", "contract", c.ID, actorID, events.EventPayload{
			"applied": decision.Applied,
			"ignored": decision.Ignored,
		}); err != nil {
			return domain.Contract{}, authz.Decision{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, authz.Decision{}, err
	}
	e.notifyAssignment(ctx, c, actor, oldExecutor, c.ExecutorID, domain.NotifyAssignedExecution, domain.NotifyReleasedExecution)
	e.notifyAssignment(ctx, c, actor, oldHandler, c.SettlementHandlerID, domain.NotifySettlementAssigned, domain.NotifySettlementReleased)
	if len(decision.Applied) > 0 {
		e.notifyUpdated(ctx, c, actor)
	}
	return c, decision, nil
}

func (e Engine) checkExecutorTarget(ctx context.Context, tx *sql.Tx, v any) error {
	id, ok := v.(string)
	if !ok {
		return ValidationError{Field: authz.FieldExecutor, Reason: "expected string"}
	}
	target, err := e.Repo.GetActorTx(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ValidationError{Field: authz.FieldExecutor, Reason: "unknown actor"}
	}
	if err != nil {
		return err
	}
	if target.Role != domain.RoleExecutor {
		return ValidationError{Field: authz.FieldExecutor, Reason: "must reference an executor"}
	}
	return nil
}

// checkSettlementAssignment gates every path that writes the settlement
// handler reference with the same preconditions.
func (e Engine) checkSettlementAssignment(ctx context.Context, tx *sql.Tx, actor domain.Actor, c domain.Contract, v any) error {
	if !c.IsConstructionInvest {
		return InvalidStateError{Reason: "settlement applies only to construction-investment contracts"}
	}
	if c.IsSettled {
		return InvalidStateError{Reason: "contract is settled"}
	}
	if actor.Role != domain.RoleAdmin && c.PaymentApprovalDate == nil {
		return InvalidStateError{Reason: "payment approval required before settlement assignment"}
	}
	if v == nil {
		return nil
	}
	id, ok := v.(string)
	if !ok {
		return ValidationError{Field: authz.FieldSettlementHandler, Reason: "expected string"}
	}
	target, err := e.Repo.GetActorTx(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ValidationError{Field: authz.FieldSettlementHandler, Reason: "unknown actor"}
	}
	if err != nil {
		return err
	}
	if target.Role != domain.RoleSettlementExecutor {
		return ValidationError{Field: authz.FieldSettlementHandler, Reason: "must reference a settlement executor"}
	}
	return nil
}

// ReassignExecutor moves a contract's assignment to another actor. Owners and
// admins move the execution track to an executor; a settlement lead moves the
// settlement track to a settlement executor, which additionally requires the
// contract to have reached payment approval. An empty target clears the
// assignment. Reassigning to the current assignee is a no-op and emits
// nothing.
func (e Engine) ReassignExecutor(ctx context.Context, contractID, targetID, actorID string) (domain.Contract, error) {
	actor, err := e.Repo.GetActor(ctx, actorID)
	if err != nil {
		return domain.Contract{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContractTx(ctx, tx, contractID)
	if err != nil {
		return domain.Contract{}, err
	}
	if actor.Role == domain.RoleSettlementLead {
		return e.reassignSettlementTrack(ctx, tx, actor, c, targetID)
	}
	if actor.Role != domain.RoleAdmin && !(actor.Role == domain.RoleOwner && c.IssuedByID == actor.ID) {
		return domain.Contract{}, authz.ForbiddenError{Reason: "only the issuing owner, a settlement lead or an admin may reassign"}
	}
	if targetID != "" {
		target, err := e.Repo.GetActorTx(ctx, tx, targetID)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Contract{}, ValidationError{Field: "executor_id", Reason: "unknown actor"}
		}
		if err != nil {
			return domain.Contract{}, err
		}
		if target.Role != domain.RoleExecutor {
			return domain.Contract{}, authz.ForbiddenError{Reason: "reassignment target must be an executor"}
		}
	}
	old := c.ExecutorID
	next := optionalString(targetID)
	if equalStringPtr(old, next) {
		return c, nil
	}
	c.ExecutorID = next
	c.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateContract(ctx, tx, c); err != nil {
		return domain.Contract{}, err
	}
	if err := e.Events.Append(ctx, tx, "contract.executor.reassigned", "contract", c.ID, actorID, events.EventPayload{
		"from": old,
		"to":   next,
	}); err != nil {
		return domain.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	e.notifyAssignment(ctx, c, actor, old, next, domain.NotifyAssignedExecution, domain.NotifyReleasedExecution)
	return c, nil
}

// reassignSettlementTrack handles a settlement lead calling reassign. The
// payment gate is checked before the target resolves, so an unpaid contract
// always reports invalid state.
func (e Engine) reassignSettlementTrack(ctx context.Context, tx *sql.Tx, actor domain.Actor, c domain.Contract, targetID string) (domain.Contract, error) {
	if c.PaymentApprovalDate == nil {
		return domain.Contract{}, InvalidStateError{Reason: "contract has not reached payment stage"}
	}
	if targetID != "" {
		target, err := e.Repo.GetActorTx(ctx, tx, targetID)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Contract{}, ValidationError{Field: "settlement_handler_id", Reason: "unknown actor"}
		}
		if err != nil {
			return domain.Contract{}, err
		}
		if target.Role != domain.RoleSettlementExecutor {
			return domain.Contract{}, authz.ForbiddenError{Reason: "reassignment target must be a settlement executor"}
		}
	}
	old := c.SettlementHandlerID
	next := optionalString(targetID)
	if equalStringPtr(old, next) {
		return c, nil
	}
	c.SettlementHandlerID = next
	c.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateContract(ctx, tx, c); err != nil {
		return domain.Contract{}, err
	}
	if err := e.Events.Append(ctx, tx, "contract.settlement_handler.reassigned", "contract", c.ID, actor.ID, events.EventPayload{
		"from": old,
		"to":   next,
	}); err != nil {
		return domain.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	e.notifyAssignment(ctx, c, actor, old, next, domain.NotifySettlementAssigned, domain.NotifySettlementReleased)
	return c, nil
}

// AssignSettlementHandler points the settlement track at a new settlement
// executor. Same gates as settlement-handler writes through UpdateContract.
func (e Engine) AssignSettlementHandler(ctx context.Context, contractID, targetID, actorID string) (domain.Contract, error) {
	actor, err := e.Repo.GetActor(ctx, actorID)
	if err != nil {
		return domain.Contract{}, err
	}
	if actor.Role != domain.RoleSettlementLead && actor.Role != domain.RoleAdmin {
		return domain.Contract{}, authz.ForbiddenError{Reason: "only a settlement lead or admin may assign settlement handlers"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContractTx(ctx, tx, contractID)
	if err != nil {
		return domain.Contract{}, err
	}
	var targetValue any
	if targetID != "" {
		targetValue = targetID
	}
	if err := e.checkSettlementAssignment(ctx, tx, actor, c, targetValue); err != nil {
		return domain.Contract{}, err
	}
	old := c.SettlementHandlerID
	next := optionalString(targetID)
	if equalStringPtr(old, next) {
		return c, nil
	}
	c.SettlementHandlerID = next
	c.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateContract(ctx, tx, c); err != nil {
		return domain.Contract{}, err
	}
	if err := e.Events.Append(ctx, tx, "contract.settlement_handler.assigned", "contract", c.ID, actorID, events.EventPayload{
		"from": old,
		"to":   next,
	}); err != nil {
		return domain.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	e.notifyAssignment(ctx, c, actor, old, next, domain.NotifySettlementAssigned, domain.NotifySettlementReleased)
	return c, nil
}

func (e Engine) DeleteContract(ctx context.Context, id, actorID string) error {
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteContract(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "contract.deleted", "contract", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// Summary counts contracts per workflow state and active contracts per
// executor. Settled contracts do not count toward workload.
type Summary struct {
	Total    int                          `json:"total"`
	States   map[domain.WorkflowState]int `json:"states"`
	Workload map[string]int               `json:"workload"`
}

func (e Engine) ContractSummary(ctx context.Context) (Summary, error) {
	contracts, err := e.Repo.ListContracts(ctx, repo.ContractFilters{})
	if err != nil {
		return Summary{}, err
	}
	s := Summary{
		States:   map[domain.WorkflowState]int{},
		Workload: map[string]int{},
	}
	now := e.now()
	for _, state := range domain.WorkflowStates {
		s.States[state] = 0
	}
	for _, c := range contracts {
		s.Total++
		s.States[domain.Status(c, now)]++
		if c.ExecutorID != nil && !c.IsSettled {
			s.Workload[*c.ExecutorID]++
		}
	}
	return s, nil
}

// --- notifications ---

// notifyAssignment records in-app notifications for an assignment change.
// Delivery is best effort: failures are logged and never fail the calling
// operation, and nothing is sent when the assignment did not change.
func (e Engine) notifyAssignment(ctx context.Context, c domain.Contract, actor domain.Actor, old, next *string, assigned, released domain.NotificationType) {
	if equalStringPtr(old, next) {
		return
	}
	link := "/contracts/" + c.ID
	if next != nil && *next != actor.ID {
		e.deliver(ctx, actor.ID, domain.Notification{
			RecipientID: *next,
			Title:       "Contract assigned",
			Message:     fmt.Sprintf("You are now responsible for contract %s.", c.ContractNumber),
			Type:        assigned,
			Link:        &link,
		})
	}
	if old != nil && *old != actor.ID {
		e.deliver(ctx, actor.ID, domain.Notification{
			RecipientID: *old,
			Title:       "Contract released",
			Message:     fmt.Sprintf("You are no longer responsible for contract %s.", c.ContractNumber),
			Type:        released,
			Link:        &link,
		})
	}
}

// notifyUpdated broadcasts a contract change made by a field worker to the
// supervising side: executor edits reach owners and admins, settlement
// executor edits reach settlement leads and admins.
func (e Engine) notifyUpdated(ctx context.Context, c domain.Contract, actor domain.Actor) {
	var roles []domain.Role
	switch actor.Role {
	case domain.RoleExecutor:
		roles = []domain.Role{domain.RoleOwner, domain.RoleAdmin}
	case domain.RoleSettlementExecutor:
		roles = []domain.Role{domain.RoleSettlementLead, domain.RoleAdmin}
	default:
		return
	}
	recipients, err := e.Repo.ListActorsByRole(ctx, roles...)
	if err != nil {
		log.Printf("[engine] notify recipients: %v", err)
		return
	}
	link := "/contracts/" + c.ID
	seen := map[string]bool{actor.ID: true}
	for _, r := range recipients {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		e.deliver(ctx, actor.ID, domain.Notification{
			RecipientID: r.ID,
			Title:       "Contract updated",
			Message:     fmt.Sprintf("%s updated contract %s.", actor.DisplayName, c.ContractNumber),
			Type:        domain.NotifyContractUpdated,
			Link:        &link,
		})
	}
}

// deliver persists a notification together with a notification.created event,
// which is what carries it to configured push endpoints. Failures are logged
// and swallowed so the triggering mutation never sees them.
func (e Engine) deliver(ctx context.Context, actorID string, n domain.Notification) {
	n.ID = uuid.New().String()
	n.CreatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("[engine] notify %s to %s: %v", n.Type, n.RecipientID, err)
		return
	}
	defer tx.Rollback()
	if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
		log.Printf("[engine] notify %s to %s: %v", n.Type, n.RecipientID, err)
		return
	}
	payload := events.EventPayload{
		"recipient_id": n.RecipientID,
		"title":        n.Title,
		"message":      n.Message,
		"type":         string(n.Type),
	}
	if n.Link != nil {
		payload["link"] = *n.Link
	}
	if err := e.Events.Append(ctx, tx, "notification.created", "notification", n.ID, actorID, payload); err != nil {
		log.Printf("[engine] notify %s to %s: %v", n.Type, n.RecipientID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("[engine] notify %s to %s: %v", n.Type, n.RecipientID, err)
	}
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
