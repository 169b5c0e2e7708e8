package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Policy is a single farmer's insurance contract for a (season, region,
// farm). Once Closed or Compensated it is immutable.
type Policy struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	Key              string      `json:"key" db:"key"`
	Season           int         `json:"season" db:"season"`
	Region           string      `json:"region" db:"region"`
	FarmID           string      `json:"farm_id" db:"farm_id"`
	State            PolicyState `json:"state" db:"state"`
	Farmer           string      `json:"farmer" db:"farmer"`
	Government       string      `json:"government" db:"government"`
	Insurer          string      `json:"insurer" db:"insurer"`
	Size             int64       `json:"size" db:"size"`
	TotalStaked      int64       `json:"total_staked" db:"total_staked"`
	Compensation     int64       `json:"compensation" db:"compensation"`
	ChangeGovernment int64       `json:"change_government" db:"change_government"`
	Severity         Severity    `json:"severity" db:"severity"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// PolicyKey builds the canonical lookup key for a policy.
func PolicyKey(season int, region, farmID string) string {
	return fmt.Sprintf("%d:%s:%s", season, region, farmID)
}

// Open reports whether the policy still awaits settlement.
func (p *Policy) Open() bool {
	switch p.State {
	case PolicyRegistered, PolicyValidated, PolicyInsured:
		return true
	}
	return false
}

// Submission is one oracle's severity observation for a (season, region).
// A submission is recorded once per oracle per key and never changes.
type Submission struct {
	Season      int      `json:"season" db:"season"`
	Region      string   `json:"region" db:"region"`
	Oracle      string   `json:"oracle" db:"oracle"`
	Severity    Severity `json:"severity" db:"severity"`
	SubmittedAt int64    `json:"submitted_at" db:"submitted_at"`
}

// SubmissionTally keeps per-severity submission counts for a (season,
// region) so aggregation runs in constant time.
type SubmissionTally struct {
	BySeverity [5]int `json:"by_severity"`
	Total      int    `json:"total"`
}
