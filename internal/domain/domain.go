package domain

// Role is the closed set of actor roles. No hierarchy; each role is a fixed
// capability bundle resolved through the tables in engine/authz.
type Role string

const (
	RoleOwner              Role = "owner"
	RoleExecutor           Role = "executor"
	RoleSettlementLead     Role = "settlement_lead"
	RoleSettlementExecutor Role = "settlement_executor"
	RoleAdmin              Role = "admin"
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleOwner, RoleExecutor, RoleSettlementLead, RoleSettlementExecutor, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleExecutor, RoleSettlementLead, RoleSettlementExecutor, RoleAdmin:
		return true
	}
	return false
}

type Actor struct {
	ID                   string  `json:"id"`
	DisplayName          string  `json:"display_name"`
	Role                 Role    `json:"role" enum:"owner,executor,settlement_lead,settlement_executor,admin"`
	LastActivityAt       *string `json:"last_activity_at,omitempty" format:"date-time"`
	MustRotateCredential bool    `json:"must_rotate_credential"`
	CreatedAt            string  `json:"created_at" format:"date-time"`
}

type Contract struct {
	ID                      string   `json:"id"`
	ContractNumber          string   `json:"contract_number"`
	FrameworkContractNumber *string  `json:"framework_contract_number,omitempty"`
	IsFrameworkContract     bool     `json:"is_framework_contract"`
	IsConstructionInvest    bool     `json:"is_construction_investment"`
	Title                   *string  `json:"title,omitempty"`
	ContractValue           *float64 `json:"contract_value,omitempty"`
	SignedDate              *string  `json:"signed_date,omitempty" format:"date"`
	EffectiveDate           *string  `json:"effective_date,omitempty" format:"date"`
	GuaranteeExpiryDate     *string  `json:"guarantee_expiry_date,omitempty" format:"date"`
	DeliveryDueDate         *string  `json:"delivery_due_date,omitempty" format:"date"`
	AmendmentNotes          *string  `json:"amendment_notes,omitempty"`
	DeliveredValue          *float64 `json:"delivered_value,omitempty"`
	AcceptedValue           *float64 `json:"accepted_value,omitempty"`
	PaymentApprovalDate     *string  `json:"payment_approval_date,omitempty" format:"date"`
	WarrantyExpiryDate      *string  `json:"warranty_expiry_date,omitempty" format:"date"`
	SettlementValue         *float64 `json:"settlement_value,omitempty"`
	SettlementDate          *string  `json:"settlement_date,omitempty" format:"date"`
	CumulativePaymentValue  *float64 `json:"cumulative_payment_value,omitempty"`
	IsSettled               bool     `json:"is_settled"`
	SettlementCompletedAt   *string  `json:"settlement_completed_at,omitempty" format:"date-time"`
	IssuedByID              string   `json:"issued_by_id"`
	ExecutorID              *string  `json:"executor_id,omitempty"`
	SettlementHandlerID     *string  `json:"settlement_handler_id,omitempty"`
	CreatedAt               string   `json:"created_at" format:"date-time"`
	UpdatedAt               string   `json:"updated_at" format:"date-time"`
}

// NotificationType classifies workflow notifications.
type NotificationType string

const (
	NotifyAssignedExecution  NotificationType = "assigned_execution"
	NotifyReleasedExecution  NotificationType = "released_execution"
	NotifyContractUpdated    NotificationType = "contract_updated"
	NotifySettlementAssigned NotificationType = "settlement_assigned"
	NotifySettlementReleased NotificationType = "settlement_released"
)

type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Type        NotificationType `json:"type" enum:"assigned_execution,released_execution,contract_updated,settlement_assigned,settlement_released"`
	Link        *string          `json:"link,omitempty"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   string           `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
