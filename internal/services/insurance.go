package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"settlement-service/internal/config"
	"settlement-service/internal/models"

	"github.com/google/uuid"
)

// InsurancePool tracks per-(season, region, farm) policies from farmer
// registration through settlement, and the pooled liquidity that backs
// compensation. Season state and aggregated severities come from the oracle
// facade; every privileged call is authorized against the gatekeeper.
type InsurancePool struct {
	mu         sync.Mutex
	gatekeeper AccessController
	oracle     OracleFacade
	escrow     *Escrow
	cfg        config.ProtocolConfig
	sink       EventSink

	balance            int64
	policies           map[string]*models.Policy
	openKeys           map[regionKey][]string
	closedKeys         map[regionKey][]string
	totalOpenSize      int64
	totalOpenContracts int64
	minimumAmount      int64
}

func NewInsurancePool(gatekeeper AccessController, oracle OracleFacade, escrow *Escrow, cfg config.ProtocolConfig, sink EventSink) *InsurancePool {
	return &InsurancePool{
		gatekeeper: gatekeeper,
		oracle:     oracle,
		escrow:     escrow,
		cfg:        cfg,
		sink:       sink,
		policies:   make(map[string]*models.Policy),
		openKeys:   make(map[regionKey][]string),
		closedKeys: make(map[regionKey][]string),
	}
}

func (p *InsurancePool) emit(ctx context.Context, event models.ProtocolEvent) {
	if p.sink == nil {
		return
	}
	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	p.sink.Emit(ctx, event)
}

func (p *InsurancePool) guard(role models.RoleID, caller, op string) error {
	if !p.gatekeeper.IsActive() {
		return fmt.Errorf("%s: %w", op, models.ErrContractSuspended)
	}
	if !p.gatekeeper.IsAssigned(role, caller) {
		return fmt.Errorf("%s: caller %s must hold %s: %w", op, caller, role, models.ErrUnauthorized)
	}
	return nil
}

// requiredLiquidity is the floor for the given exposure: one keeper fee per
// open policy plus the worst-case payout on the insured surface.
func (p *InsurancePool) requiredLiquidity(openContracts, openSize int64) int64 {
	return openContracts*p.cfg.InsuranceKeeperFee + openSize*p.cfg.PremiumPerHA*p.cfg.WorstCaseRatio()/10
}

func (p *InsurancePool) recomputeMinimum() {
	p.minimumAmount = p.requiredLiquidity(p.totalOpenContracts, p.totalOpenSize)
}

// Fund adds liquidity to the pool. Restricted to insurers.
func (p *InsurancePool) Fund(ctx context.Context, caller string, amount int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.guard(models.InsurerRole, caller, "fund insurance pool"); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("fund insurance pool: amount %d must be positive", amount)
	}
	p.balance += amount
	p.emit(ctx, models.ProtocolEvent{
		Type:    models.EventLiquidityProvided,
		Account: caller,
		Amount:  amount,
	})
	return nil
}

// Register creates a policy in Registered state. The farmer covers half the
// premium; any excess over the required stake is refunded through escrow.
// The pool must already hold enough liquidity for the exposure the new
// policy adds.
func (p *InsurancePool) Register(ctx context.Context, season int, region, farmID string, size, fee int64, caller string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	op := fmt.Sprintf("register policy %s", models.PolicyKey(season, region, farmID))
	if err := p.guard(models.FarmerRole, caller, op); err != nil {
		return err
	}
	if p.oracle.GetSeasonState(season) != models.SeasonOpen {
		return fmt.Errorf("%s: season must be open: %w", op, models.ErrInvalidState)
	}
	if size <= 0 {
		return fmt.Errorf("%s: size %d must be positive", op, size)
	}
	required := p.cfg.HalfPremiumPerHA() * size
	if fee < required {
		return fmt.Errorf("%s: fee %d below half premium %d: %w", op, fee, required, models.ErrInsufficientFunds)
	}
	key := models.PolicyKey(season, region, farmID)
	if _, ok := p.policies[key]; ok {
		return fmt.Errorf("%s: %w", op, models.ErrDuplicate)
	}
	floor := p.requiredLiquidity(p.totalOpenContracts+1, p.totalOpenSize+size)
	if p.balance+required < floor {
		return fmt.Errorf("%s: balance %d below required liquidity %d: %w", op, p.balance+required, floor, models.ErrInsufficientFunds)
	}

	p.balance += required
	if excess := fee - required; excess > 0 {
		if err := p.escrow.DepositFor(ctx, caller, excess); err != nil {
			return fmt.Errorf("%s: refund excess: %w", op, err)
		}
	}

	now := time.Now()
	policy := &models.Policy{
		ID:          uuid.New(),
		Key:         key,
		Season:      season,
		Region:      region,
		FarmID:      farmID,
		State:       models.PolicyRegistered,
		Farmer:      caller,
		Size:        size,
		TotalStaked: required,
		Severity:    models.SeverityDefault,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.policies[key] = policy
	rk := regionKey{season: season, region: region}
	p.openKeys[rk] = append(p.openKeys[rk], key)
	p.totalOpenSize += size
	p.totalOpenContracts++
	p.recomputeMinimum()

	p.emit(ctx, models.ProtocolEvent{
		Type:    models.EventInsuranceRequested,
		Season:  season,
		Region:  region,
		FarmID:  farmID,
		Account: caller,
		Amount:  required,
		Details: map[string]any{"size": size, "key": key},
	})
	return nil
}

// Validate is the government co-funding step: Registered -> Validated. The
// fee requirement mirrors the farmer's half premium.
func (p *InsurancePool) Validate(ctx context.Context, season int, region, farmID string, fee int64, caller string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	op := fmt.Sprintf("validate policy %s", models.PolicyKey(season, region, farmID))
	if err := p.guard(models.GovernmentRole, caller, op); err != nil {
		return err
	}
	if p.oracle.GetSeasonState(season) != models.SeasonOpen {
		return fmt.Errorf("%s: season must be open: %w", op, models.ErrInvalidState)
	}
	policy, ok := p.policies[models.PolicyKey(season, region, farmID)]
	if !ok {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if policy.State != models.PolicyRegistered {
		return fmt.Errorf("%s: policy must be registered, is %s: %w", op, policy.State, models.ErrInvalidState)
	}
	required := p.cfg.HalfPremiumPerHA() * policy.Size
	if fee < required {
		return fmt.Errorf("%s: fee %d below half premium %d: %w", op, fee, required, models.ErrInsufficientFunds)
	}

	p.balance += required
	if excess := fee - required; excess > 0 {
		if err := p.escrow.DepositFor(ctx, caller, excess); err != nil {
			return fmt.Errorf("%s: refund excess: %w", op, err)
		}
	}
	policy.TotalStaked += required
	policy.Government = caller
	policy.State = models.PolicyValidated
	policy.UpdatedAt = time.Now()
	p.recomputeMinimum()

	p.emit(ctx, models.ProtocolEvent{
		Type:    models.EventInsuranceValidated,
		Season:  season,
		Region:  region,
		FarmID:  farmID,
		Account: caller,
		Amount:  policy.TotalStaked,
		Details: map[string]any{"key": policy.Key},
	})
	return nil
}

// Activate is the insurer's acceptance: Validated -> Insured. The insurer
// stakes no per-policy funds; its exposure is the pooled liquidity.
func (p *InsurancePool) Activate(ctx context.Context, season int, region, farmID string, caller string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	op := fmt.Sprintf("activate policy %s", models.PolicyKey(season, region, farmID))
	if err := p.guard(models.InsurerRole, caller, op); err != nil {
		return err
	}
	if p.oracle.GetSeasonState(season) != models.SeasonOpen {
		return fmt.Errorf("%s: season must be open: %w", op, models.ErrInvalidState)
	}
	policy, ok := p.policies[models.PolicyKey(season, region, farmID)]
	if !ok {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if policy.State != models.PolicyValidated {
		return fmt.Errorf("%s: policy must be validated, is %s: %w", op, policy.State, models.ErrInvalidState)
	}

	policy.Insurer = caller
	policy.State = models.PolicyInsured
	policy.UpdatedAt = time.Now()

	p.emit(ctx, models.ProtocolEvent{
		Type:    models.EventInsuranceActivated,
		Season:  season,
		Region:  region,
		FarmID:  farmID,
		Account: caller,
		Details: map[string]any{"key": policy.Key},
	})
	return nil
}

// Process settles every open policy of (season, region) after the season
// closed, paying the keeper one fee per settled policy. How far a policy
// progressed decides the branch:
//   - never validated: the farmer's stake comes back in full;
//   - validated but not activated, or activated with no aggregation result:
//     farmer and government each get their stake back;
//   - activated with severity D0: stakes stay in the pool, no payout;
//   - activated with severity D1..D4: the farmer is compensated with
//     totalStaked x ratio / 10 from the ratio table.
func (p *InsurancePool) Process(ctx context.Context, season int, region string, caller string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	op := fmt.Sprintf("process season %d region %s", season, region)
	if err := p.guard(models.KeeperRole, caller, op); err != nil {
		return err
	}
	if p.oracle.GetSeasonState(season) != models.SeasonClosed {
		return fmt.Errorf("%s: season must be closed: %w", op, models.ErrInvalidState)
	}

	rk := regionKey{season: season, region: region}
	severity := p.oracle.GetAggregatedSeverity(season, region)
	keys := p.openKeys[rk]

	// Cost the whole batch before moving a single unit, so a shortfall
	// rejects the call with nothing applied.
	var total int64
	plans := make([]settlementPlan, len(keys))
	for i, key := range keys {
		plans[i] = p.planSettlement(p.policies[key], severity)
		total += p.cfg.InsuranceKeeperFee + plans[i].farmer + plans[i].government
	}
	if p.balance < total {
		return fmt.Errorf("%s: balance %d below settlement cost %d: %w", op, p.balance, total, models.ErrInsufficientFunds)
	}

	for i, key := range keys {
		p.applySettlement(ctx, p.policies[key], plans[i], severity, caller)
		p.closedKeys[rk] = append(p.closedKeys[rk], key)
		p.totalOpenSize -= p.policies[key].Size
		p.totalOpenContracts--
	}
	p.openKeys[rk] = nil
	p.recomputeMinimum()
	return nil
}

type settlementPlan struct {
	farmer     int64
	government int64
	state      models.PolicyState
}

// planSettlement picks the settlement branch for one policy.
func (p *InsurancePool) planSettlement(policy *models.Policy, severity models.Severity) settlementPlan {
	switch {
	case policy.Government == "":
		// Never backed by a government: the farmer's stake comes back whole.
		return settlementPlan{farmer: policy.TotalStaked, state: models.PolicyClosed}
	case policy.Insurer == "" || severity == models.SeverityDefault:
		// Never activated, or no aggregation result: both stakes come back.
		half := policy.TotalStaked / 2
		return settlementPlan{farmer: half, government: policy.TotalStaked - half, state: models.PolicyClosed}
	default:
		compensation := policy.TotalStaked * p.cfg.PayoutRatio(severity) / 10
		state := models.PolicyClosed
		if compensation > 0 {
			state = models.PolicyCompensated
		}
		return settlementPlan{farmer: compensation, state: state}
	}
}

func (p *InsurancePool) applySettlement(ctx context.Context, policy *models.Policy, plan settlementPlan, severity models.Severity, keeper string) {
	if p.cfg.InsuranceKeeperFee > 0 {
		p.balance -= p.cfg.InsuranceKeeperFee
		p.escrow.DepositFor(ctx, keeper, p.cfg.InsuranceKeeperFee)
	}
	if plan.farmer > 0 {
		p.balance -= plan.farmer
		p.escrow.DepositFor(ctx, policy.Farmer, plan.farmer)
	}
	if plan.government > 0 {
		p.balance -= plan.government
		p.escrow.DepositFor(ctx, policy.Government, plan.government)
	}

	policy.Severity = severity
	policy.Compensation = plan.farmer
	policy.ChangeGovernment = plan.government
	policy.UpdatedAt = time.Now()

	policy.State = plan.state
	eventType := models.EventInsuranceClosed
	if plan.state == models.PolicyCompensated {
		eventType = models.EventInsuranceCompensated
	}

	p.emit(ctx, models.ProtocolEvent{
		Type:     eventType,
		Season:   policy.Season,
		Region:   policy.Region,
		FarmID:   policy.FarmID,
		Account:  policy.Farmer,
		Severity: severity,
		Amount:   policy.Compensation,
		Details: map[string]any{
			"key":               policy.Key,
			"size":              policy.Size,
			"total_staked":      policy.TotalStaked,
			"change_government": policy.ChangeGovernment,
			"insurer":           policy.Insurer,
			"government":        policy.Government,
		},
	})
}

func (p *InsurancePool) MinimumAmount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minimumAmount
}

func (p *InsurancePool) Balance() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance
}

func (p *InsurancePool) TotalOpenSize() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalOpenSize
}

func (p *InsurancePool) TotalOpenContracts() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalOpenContracts
}

// GetPolicy returns a copy of the policy at (season, region, farm).
func (p *InsurancePool) GetPolicy(season int, region, farmID string) (models.Policy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	policy, ok := p.policies[models.PolicyKey(season, region, farmID)]
	if !ok {
		return models.Policy{}, fmt.Errorf("policy %s: %w", models.PolicyKey(season, region, farmID), models.ErrNotFound)
	}
	return *policy, nil
}

func (p *InsurancePool) GetNumberOpenContracts(season int, region string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.openKeys[regionKey{season: season, region: region}])
}

func (p *InsurancePool) GetOpenContractAt(season int, region string, index int) (models.Policy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contractAt(p.openKeys[regionKey{season: season, region: region}], index)
}

func (p *InsurancePool) GetNumberClosedContracts(season int, region string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.closedKeys[regionKey{season: season, region: region}])
}

func (p *InsurancePool) GetClosedContractAt(season int, region string, index int) (models.Policy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contractAt(p.closedKeys[regionKey{season: season, region: region}], index)
}

func (p *InsurancePool) contractAt(keys []string, index int) (models.Policy, error) {
	if index < 0 || index >= len(keys) {
		return models.Policy{}, fmt.Errorf("contract at %d: %w", index, models.ErrNotFound)
	}
	return *p.policies[keys[index]], nil
}

// OpenRegions lists the regions of a season that still have open policies.
func (p *InsurancePool) OpenRegions(season int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var regions []string
	for rk, keys := range p.openKeys {
		if rk.season == season && len(keys) > 0 {
			regions = append(regions, rk.region)
		}
	}
	sort.Strings(regions)
	return regions
}

// SetGatekeeper swaps the access registry, with the same capability check as
// the oracle engine.
func (p *InsurancePool) SetGatekeeper(candidate any, caller string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.gatekeeper.IsAssigned(models.DefaultAdminRole, caller) {
		return fmt.Errorf("set gatekeeper: caller %s must hold %s: %w", caller, models.DefaultAdminRole, models.ErrUnauthorized)
	}
	replacement, ok := candidate.(AccessController)
	if !ok {
		return fmt.Errorf("set gatekeeper: provided registry %T does not implement %s", candidate, AccessControllerCapability)
	}
	p.gatekeeper = replacement
	p.emit(context.Background(), models.ProtocolEvent{
		Type:    models.EventNewGatekeeper,
		Account: caller,
	})
	return nil
}
