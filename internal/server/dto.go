package server

import (
	"encoding/json"
	"time"

	"contractdesk/internal/domain"
)

// Request payloads

type CreateContractRequest struct {
	ID                       *string  `json:"id,omitempty"`
	ContractNumber           *string  `json:"contract_number,omitempty"`
	FrameworkContractNumber  *string  `json:"framework_contract_number,omitempty"`
	IsFrameworkContract      bool     `json:"is_framework_contract,omitempty"`
	IsConstructionInvestment bool     `json:"is_construction_investment,omitempty"`
	Title                    *string  `json:"title,omitempty"`
	ContractValue            *float64 `json:"contract_value,omitempty"`
	SignedDate               *string  `json:"signed_date,omitempty"`
	ExecutorID               *string  `json:"executor_id,omitempty"`
	IssuedByID               *string  `json:"issued_by_id,omitempty"`
}

type AssignRequest struct {
	// Empty clears the assignment.
	ActorID string `json:"actor_id"`
}

type CreateActorRequest struct {
	ID          *string `json:"id,omitempty"`
	DisplayName string  `json:"display_name"`
	Role        string  `json:"role" enum:"owner,executor,settlement_lead,settlement_executor,admin"`
}

type IssueAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type ContractResponse struct {
	domain.Contract
	Status domain.WorkflowState `json:"status" enum:"unfilled,new,in_delivery,accepted,payment_approved,under_warranty,settled"`
}

func contractResponse(c domain.Contract, now time.Time) ContractResponse {
	return ContractResponse{Contract: c, Status: domain.Status(c, now)}
}

type UpdateContractResponse struct {
	Contract ContractResponse `json:"contract"`
	Applied  []string         `json:"applied"`
	Ignored  []string         `json:"ignored"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt}
}

// IssueAPIKeyResponse carries the plaintext key exactly once.
type IssueAPIKeyResponse struct {
	Key    APIKeyResponse `json:"key"`
	Secret string         `json:"secret"`
}

type WhoAmIResponse struct {
	ActorID     string      `json:"actor_id"`
	DisplayName string      `json:"display_name,omitempty"`
	Role        domain.Role `json:"role,omitempty"`
	Source      string      `json:"source"`
	Unread      int         `json:"unread_notifications"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage([]byte("{}"))
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage([]byte(evt.Payload))
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}

type paginatedContracts struct {
	Items      []ContractResponse `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type paginatedNotifications struct {
	Items      []domain.Notification `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type MarkAllReadResponse struct {
	Marked int64 `json:"marked"`
}
