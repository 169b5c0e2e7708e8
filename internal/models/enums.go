package models

// Severity is the drought intensity classification reported by oracles.
// SeverityDefault means "not set": it is never submittable and is what
// aggregation yields when no oracle reported for a (season, region).
type Severity string

const (
	SeverityDefault Severity = "D"
	SeverityD0      Severity = "D0"
	SeverityD1      Severity = "D1"
	SeverityD2      Severity = "D2"
	SeverityD3      Severity = "D3"
	SeverityD4      Severity = "D4"
)

var severityLevels = [...]Severity{SeverityD0, SeverityD1, SeverityD2, SeverityD3, SeverityD4}

// Level maps D0..D4 to 0..4. SeverityDefault and unknown values map to -1.
func (s Severity) Level() int {
	for i, level := range severityLevels {
		if s == level {
			return i
		}
	}
	return -1
}

// IsSubmittable reports whether an oracle may submit this value.
func (s Severity) IsSubmittable() bool {
	return s.Level() >= 0
}

// SeverityFromLevel is the inverse of Level for 0..4; anything else yields
// SeverityDefault.
func SeverityFromLevel(level int) Severity {
	if level < 0 || level >= len(severityLevels) {
		return SeverityDefault
	}
	return severityLevels[level]
}

type SeasonState string

const (
	SeasonDefault SeasonState = "default"
	SeasonOpen    SeasonState = "open"
	SeasonClosed  SeasonState = "closed"
)

type PolicyState string

const (
	PolicyDefault     PolicyState = "default"
	PolicyRegistered  PolicyState = "registered"
	PolicyValidated   PolicyState = "validated"
	PolicyInsured     PolicyState = "insured"
	PolicyClosed      PolicyState = "closed"
	PolicyCompensated PolicyState = "compensated"
)

// RoleID identifies a role in the gatekeeper hierarchy. Roles are opaque
// keys; the constants below are the ones the protocol wires by default, but
// any key can be created through AddRole.
type RoleID string

const (
	DefaultAdminRole RoleID = "DEFAULT_ADMIN_ROLE"
	AdminRole        RoleID = "INSURANCE_ADMIN_ROLE"
	InsurerRole      RoleID = "INSURER_ROLE"
	GovernmentRole   RoleID = "GOVERNMENT_ROLE"
	FarmerRole       RoleID = "FARMER_ROLE"
	OracleRole       RoleID = "ORACLE_ROLE"
	KeeperRole       RoleID = "KEEPER_ROLE"
)
