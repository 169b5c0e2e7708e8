package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventRoleGranted          EventType = "role_granted"
	EventRoleRevoked          EventType = "role_revoked"
	EventRoleAdminChanged     EventType = "role_admin_changed"
	EventNewRole              EventType = "new_role"
	EventNewAdmin             EventType = "new_admin"
	EventNewGatekeeper        EventType = "new_gatekeeper"
	EventSwitchedOn           EventType = "switched_on"
	EventSwitchedOff          EventType = "switched_off"
	EventDeposited            EventType = "deposited"
	EventWithdrawn            EventType = "withdrawn"
	EventLiquidityProvided    EventType = "liquidity_provided"
	EventSeasonOpen           EventType = "season_open"
	EventSeasonClosed         EventType = "season_closed"
	EventSeveritySubmitted    EventType = "severity_submitted"
	EventSeverityAggregated   EventType = "severity_aggregated"
	EventInsuranceRequested   EventType = "insurance_requested"
	EventInsuranceValidated   EventType = "insurance_validated"
	EventInsuranceActivated   EventType = "insurance_activated"
	EventInsuranceClosed      EventType = "insurance_closed"
	EventInsuranceCompensated EventType = "insurance_compensated"
)

// ProtocolEvent is the domain event carried by the settlement journal and
// the message queue. Not every field is set for every type; zero values are
// omitted on the wire.
type ProtocolEvent struct {
	ID        uuid.UUID      `json:"id"`
	Type      EventType      `json:"type"`
	Season    int            `json:"season,omitempty"`
	Region    string         `json:"region,omitempty"`
	FarmID    string         `json:"farm_id,omitempty"`
	Account   string         `json:"account,omitempty"`
	Role      RoleID         `json:"role,omitempty"`
	Severity  Severity       `json:"severity,omitempty"`
	Amount    int64          `json:"amount,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
