package models

type AddRoleRequest struct {
	Role      RoleID `json:"role"`
	AdminRole RoleID `json:"admin_role"`
}

type AssignmentRequest struct {
	Account string `json:"account"`
}

type FundRequest struct {
	Amount int64 `json:"amount"`
}

type OpenSeasonRequest struct {
	Season int `json:"season"`
}

type SubmitSeverityRequest struct {
	Season   int      `json:"season"`
	Region   string   `json:"region"`
	Severity Severity `json:"severity"`
}

type AggregateRequest struct {
	Season int    `json:"season"`
	Region string `json:"region"`
}

type RegisterPolicyRequest struct {
	Season int    `json:"season"`
	Region string `json:"region"`
	FarmID string `json:"farm_id"`
	Size   int64  `json:"size"`
	Fee    int64  `json:"fee"`
}

type ValidatePolicyRequest struct {
	Season int    `json:"season"`
	Region string `json:"region"`
	FarmID string `json:"farm_id"`
	Fee    int64  `json:"fee"`
}

type ActivatePolicyRequest struct {
	Season int    `json:"season"`
	Region string `json:"region"`
	FarmID string `json:"farm_id"`
}

type ProcessRequest struct {
	Season int    `json:"season"`
	Region string `json:"region"`
}
