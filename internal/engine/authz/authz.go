// Package authz computes, per request, which contract fields an actor may
// write. Policy is a data table keyed by role, not branches scattered through
// handlers; disallowed fields are filtered out of the patch rather than
// rejected, matching PATCH-style partial-update semantics.
package authz

import (
	"fmt"

	"contractdesk/internal/domain"
)

// Field names, matching the JSON wire names.
const (
	FieldTitle                  = "title"
	FieldContractValue          = "contract_value"
	FieldSignedDate             = "signed_date"
	FieldEffectiveDate          = "effective_date"
	FieldGuaranteeExpiryDate    = "guarantee_expiry_date"
	FieldDeliveryDueDate        = "delivery_due_date"
	FieldAmendmentNotes         = "amendment_notes"
	FieldDeliveredValue         = "delivered_value"
	FieldAcceptedValue          = "accepted_value"
	FieldPaymentApprovalDate    = "payment_approval_date"
	FieldWarrantyExpiryDate     = "warranty_expiry_date"
	FieldExecutor               = "executor_id"
	FieldSettlementValue        = "settlement_value"
	FieldSettlementDate         = "settlement_date"
	FieldCumulativePaymentValue = "cumulative_payment_value"
	FieldIsSettled              = "is_settled"
	FieldSettlementHandler      = "settlement_handler_id"
)

// BaseFields are the non-settlement mutable fields, including the executor
// reference.
var BaseFields = []string{
	FieldTitle, FieldContractValue, FieldSignedDate, FieldEffectiveDate,
	FieldGuaranteeExpiryDate, FieldDeliveryDueDate, FieldAmendmentNotes,
	FieldDeliveredValue, FieldAcceptedValue, FieldPaymentApprovalDate,
	FieldWarrantyExpiryDate, FieldExecutor,
}

// SettlementFields are writable only on construction-investment contracts and
// only while the contract is not settled.
var SettlementFields = []string{
	FieldSettlementValue, FieldSettlementDate, FieldCumulativePaymentValue, FieldIsSettled,
}

// KnownFields is the union of every patchable field name.
var KnownFields = func() map[string]bool {
	m := map[string]bool{FieldSettlementHandler: true}
	for _, f := range BaseFields {
		m[f] = true
	}
	for _, f := range SettlementFields {
		m[f] = true
	}
	return m
}()

// baseAllow is the static per-role base-field allow-list. Executor gets a
// contract-dependent adjustment in Allowed (title and signed date lock once
// populated).
var baseAllow = map[domain.Role][]string{
	domain.RoleOwner:    {FieldTitle, FieldSignedDate, FieldExecutor},
	domain.RoleExecutor: BaseFields,
	domain.RoleAdmin:    BaseFields,
}

// ForbiddenError indicates the actor has no authority over the contract at
// all; a patch from such an actor is rejected whole, never filtered.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string { return e.Reason }

// Patch is a partial update keyed by field name. Values follow JSON decoding
// conventions: string, float64, bool, or nil to clear.
type Patch map[string]any

// Decision reports which requested fields were applied and which were
// silently dropped by policy.
type Decision struct {
	Applied []string `json:"applied"`
	Ignored []string `json:"ignored"`
}

// HasAuthority reports whether the actor has any standing on the contract.
// Admin always does; the lead roles have standing over their whole track;
// executor-track roles only over contracts assigned to them.
func HasAuthority(actor domain.Actor, c domain.Contract) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleOwner:
		return c.IssuedByID == actor.ID
	case domain.RoleSettlementLead:
		return true
	case domain.RoleExecutor:
		return c.ExecutorID != nil && *c.ExecutorID == actor.ID
	case domain.RoleSettlementExecutor:
		return c.SettlementHandlerID != nil && *c.SettlementHandlerID == actor.ID
	}
	return false
}

// Allowed returns the set of fields the actor may write on this contract in
// its current state.
func Allowed(actor domain.Actor, c domain.Contract) map[string]bool {
	allowed := map[string]bool{}
	for _, f := range baseAllow[actor.Role] {
		allowed[f] = true
	}
	if actor.Role == domain.RoleExecutor {
		// Management-set values: once populated they are locked against
		// executor overwrites.
		if c.Title != nil {
			delete(allowed, FieldTitle)
		}
		if c.SignedDate != nil {
			delete(allowed, FieldSignedDate)
		}
	}
	settlementWriter := actor.Role == domain.RoleAdmin ||
		(actor.Role == domain.RoleSettlementExecutor && c.SettlementHandlerID != nil && *c.SettlementHandlerID == actor.ID)
	if settlementWriter && c.IsConstructionInvest && !c.IsSettled {
		for _, f := range SettlementFields {
			allowed[f] = true
		}
	}
	if actor.Role == domain.RoleSettlementLead || actor.Role == domain.RoleAdmin {
		allowed[FieldSettlementHandler] = true
	}
	return allowed
}

// Filter splits the patch into the allowed subset and the ignored field
// names. It returns ForbiddenError when the actor has no authority over the
// contract; a dropped field is never an error.
func Filter(actor domain.Actor, c domain.Contract, p Patch) (Patch, Decision, error) {
	if !HasAuthority(actor, c) {
		return nil, Decision{}, ForbiddenError{Reason: "no authority over this contract"}
	}
	allowed := Allowed(actor, c)
	applied := Patch{}
	var decision Decision
	for _, f := range orderedFields() {
		v, present := p[f]
		if !present {
			continue
		}
		if allowed[f] {
			applied[f] = v
			decision.Applied = append(decision.Applied, f)
		} else {
			decision.Ignored = append(decision.Ignored, f)
		}
	}
	return applied, decision, nil
}

func orderedFields() []string {
	fields := make([]string, 0, len(BaseFields)+len(SettlementFields)+1)
	fields = append(fields, BaseFields...)
	fields = append(fields, SettlementFields...)
	return append(fields, FieldSettlementHandler)
}

// Apply writes a filtered patch onto the contract. Type mismatches are
// reported per field; nil clears a nullable field.
func Apply(c *domain.Contract, p Patch) error {
	for f, v := range p {
		var err error
		switch f {
		case FieldTitle:
			c.Title, err = asStringPtr(f, v)
		case FieldContractValue:
			c.ContractValue, err = asFloatPtr(f, v)
		case FieldSignedDate:
			c.SignedDate, err = asStringPtr(f, v)
		case FieldEffectiveDate:
			c.EffectiveDate, err = asStringPtr(f, v)
		case FieldGuaranteeExpiryDate:
			c.GuaranteeExpiryDate, err = asStringPtr(f, v)
		case FieldDeliveryDueDate:
			c.DeliveryDueDate, err = asStringPtr(f, v)
		case FieldAmendmentNotes:
			c.AmendmentNotes, err = asStringPtr(f, v)
		case FieldDeliveredValue:
			c.DeliveredValue, err = asFloatPtr(f, v)
		case FieldAcceptedValue:
			c.AcceptedValue, err = asFloatPtr(f, v)
		case FieldPaymentApprovalDate:
			c.PaymentApprovalDate, err = asStringPtr(f, v)
		case FieldWarrantyExpiryDate:
			c.WarrantyExpiryDate, err = asStringPtr(f, v)
		case FieldExecutor:
			c.ExecutorID, err = asStringPtr(f, v)
		case FieldSettlementValue:
			c.SettlementValue, err = asFloatPtr(f, v)
		case FieldSettlementDate:
			c.SettlementDate, err = asStringPtr(f, v)
		case FieldCumulativePaymentValue:
			c.CumulativePaymentValue, err = asFloatPtr(f, v)
		case FieldIsSettled:
			var b bool
			b, err = asBool(f, v)
			if err == nil && b {
				// One-way flag; is_settled=false in a patch is ignored once
				// filtering has allowed the field, because the contract is
				// known to be unsettled here.
				c.IsSettled = true
			}
		case FieldSettlementHandler:
			c.SettlementHandlerID, err = asStringPtr(f, v)
		default:
			err = fmt.Errorf("unknown field %s", f)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func asStringPtr(field string, v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("field %s: expected string, got %T", field, v)
	}
	return &s, nil
}

func asFloatPtr(field string, v any) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	switch n := v.(type) {
	case float64:
		return &n, nil
	case int:
		f := float64(n)
		return &f, nil
	}
	return nil, fmt.Errorf("field %s: expected number, got %T", field, v)
}

func asBool(field string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %s: expected boolean, got %T", field, v)
	}
	return b, nil
}
