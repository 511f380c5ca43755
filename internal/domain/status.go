package domain

import "time"

// WorkflowState is the derived lifecycle stage of a contract. It is computed
// from field presence, never stored; reporting, dashboards and tests all go
// through Status so there is a single oracle.
type WorkflowState string

const (
	StateUnfilled        WorkflowState = "unfilled"
	StateNew             WorkflowState = "new"
	StateInDelivery      WorkflowState = "in_delivery"
	StateAccepted        WorkflowState = "accepted"
	StatePaymentApproved WorkflowState = "payment_approved"
	StateUnderWarranty   WorkflowState = "under_warranty"
	StateSettled         WorkflowState = "settled"
)

// WorkflowStates lists the stages in lifecycle order.
var WorkflowStates = []WorkflowState{
	StateUnfilled, StateNew, StateInDelivery, StateAccepted,
	StatePaymentApproved, StateUnderWarranty, StateSettled,
}

// Status derives the workflow state of c at the given instant. Later stages
// win: a settled contract is settled no matter what else is set. The instant
// only matters for the warranty window.
func Status(c Contract, now time.Time) WorkflowState {
	if c.IsSettled {
		return StateSettled
	}
	if c.WarrantyExpiryDate != nil {
		if exp, err := time.Parse("2006-01-02", *c.WarrantyExpiryDate); err == nil && exp.After(now) {
			return StateUnderWarranty
		}
	}
	if c.PaymentApprovalDate != nil {
		return StatePaymentApproved
	}
	if c.AcceptedValue != nil {
		return StateAccepted
	}
	if c.DeliveredValue != nil {
		return StateInDelivery
	}
	if c.Title != nil && c.ContractValue != nil && c.SignedDate != nil {
		return StateNew
	}
	return StateUnfilled
}
