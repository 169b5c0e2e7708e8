package services

import (
	"context"
	"testing"

	"settlement-service/internal/config"
	"settlement-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOracle pins season states and aggregated severities so settlement
// branches can be exercised directly.
type stubOracle struct {
	states     map[int]models.SeasonState
	severities map[string]models.Severity
}

func newStubOracle() *stubOracle {
	return &stubOracle{
		states:     make(map[int]models.SeasonState),
		severities: make(map[string]models.Severity),
	}
}

func (s *stubOracle) GetSeasonState(season int) models.SeasonState {
	return s.states[season]
}

func (s *stubOracle) GetAggregatedSeverity(season int, region string) models.Severity {
	if severity, ok := s.severities[region]; ok {
		return severity
	}
	return models.SeverityDefault
}

func newTestPool(t *testing.T) (*stubOracle, *Escrow, *InsurancePool) {
	t.Helper()
	g := newTestGatekeeper(t)
	oracle := newStubOracle()
	oracle.states[2026] = models.SeasonOpen
	escrow := NewEscrow("insurance", nil)
	pool := NewInsurancePool(g, oracle, escrow, config.DefaultProtocolConfig(), nil)
	require.NoError(t, pool.Fund(context.Background(), insurer, 100_000))
	return oracle, escrow, pool
}

// registerPolicy walks a fresh policy to the requested lifecycle stage with
// the exact half-premium fees for a 2 ha farm.
func registerPolicy(t *testing.T, pool *InsurancePool, farmID string, stage models.PolicyState) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, pool.Register(ctx, 2026, "north", farmID, 2, 1500, farmer))
	if stage == models.PolicyRegistered {
		return
	}
	require.NoError(t, pool.Validate(ctx, 2026, "north", farmID, 1500, government))
	if stage == models.PolicyValidated {
		return
	}
	require.NoError(t, pool.Activate(ctx, 2026, "north", farmID, insurer))
}

func TestRegister_Preconditions(t *testing.T) {
	ctx := context.Background()
	_, _, pool := newTestPool(t)

	assert.ErrorIs(t, pool.Register(ctx, 2026, "north", "farm-1", 2, 1500, government), models.ErrUnauthorized)
	assert.ErrorIs(t, pool.Register(ctx, 2027, "north", "farm-1", 2, 1500, farmer), models.ErrInvalidState, "season not open")
	assert.Error(t, pool.Register(ctx, 2026, "north", "farm-1", 0, 1500, farmer))
	assert.ErrorIs(t, pool.Register(ctx, 2026, "north", "farm-1", 2, 1499, farmer), models.ErrInsufficientFunds, "fee below half premium")

	require.NoError(t, pool.Register(ctx, 2026, "north", "farm-1", 2, 1500, farmer))
	assert.ErrorIs(t, pool.Register(ctx, 2026, "north", "farm-1", 2, 1500, farmer), models.ErrDuplicate)
}

func TestRegister_CreatesPolicyAndUpdatesExposure(t *testing.T) {
	ctx := context.Background()
	_, _, pool := newTestPool(t)
	require.NoError(t, pool.Register(ctx, 2026, "north", "farm-1", 2, 1500, farmer))

	policy, err := pool.GetPolicy(2026, "north", "farm-1")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyRegistered, policy.State)
	assert.Equal(t, farmer, policy.Farmer)
	assert.Equal(t, int64(2), policy.Size)
	assert.Equal(t, int64(1500), policy.TotalStaked, "half premium per hectare")
	assert.Equal(t, models.SeverityDefault, policy.Severity)

	assert.Equal(t, int64(101_500), pool.Balance())
	assert.Equal(t, int64(1), pool.TotalOpenContracts())
	assert.Equal(t, int64(2), pool.TotalOpenSize())
	// one keeper fee plus worst-case payout on 2 ha
	assert.Equal(t, int64(100+2*1500*25/10), pool.MinimumAmount())
	assert.Equal(t, 1, pool.GetNumberOpenContracts(2026, "north"))
	assert.Equal(t, []string{"north"}, pool.OpenRegions(2026))
}

func TestRegister_RefundsExcessFee(t *testing.T) {
	ctx := context.Background()
	_, escrow, pool := newTestPool(t)
	require.NoError(t, pool.Register(ctx, 2026, "north", "farm-1", 2, 2000, farmer))

	assert.Equal(t, int64(500), escrow.BalanceOf(farmer), "overpayment comes back through escrow")
	assert.Equal(t, int64(101_500), pool.Balance(), "the pool keeps only the required stake")
}

func TestRegister_EnforcesLiquidityFloor(t *testing.T) {
	ctx := context.Background()
	g := newTestGatekeeper(t)
	oracle := newStubOracle()
	oracle.states[2026] = models.SeasonOpen
	pool := NewInsurancePool(g, oracle, NewEscrow("insurance", nil), config.DefaultProtocolConfig(), nil)

	// floor for one 2 ha policy is 7600; the farmer stake of 1500 leaves a
	// 6100 shortfall without insurer funding
	err := pool.Register(ctx, 2026, "north", "farm-1", 2, 1500, farmer)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	require.NoError(t, pool.Fund(ctx, insurer, 6_100))
	require.NoError(t, pool.Register(ctx, 2026, "north", "farm-1", 2, 1500, farmer))
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	_, _, pool := newTestPool(t)
	require.NoError(t, pool.Register(ctx, 2026, "north", "farm-1", 2, 1500, farmer))

	assert.ErrorIs(t, pool.Validate(ctx, 2026, "north", "farm-1", 1500, farmer), models.ErrUnauthorized)
	assert.ErrorIs(t, pool.Validate(ctx, 2026, "north", "missing", 1500, government), models.ErrNotFound)
	assert.ErrorIs(t, pool.Validate(ctx, 2026, "north", "farm-1", 1499, government), models.ErrInsufficientFunds)

	require.NoError(t, pool.Validate(ctx, 2026, "north", "farm-1", 1500, government))
	policy, err := pool.GetPolicy(2026, "north", "farm-1")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyValidated, policy.State)
	assert.Equal(t, government, policy.Government)
	assert.Equal(t, int64(3000), policy.TotalStaked, "both halves staked")

	assert.ErrorIs(t, pool.Validate(ctx, 2026, "north", "farm-1", 1500, government), models.ErrInvalidState)
}

func TestActivate(t *testing.T) {
	ctx := context.Background()
	_, _, pool := newTestPool(t)
	require.NoError(t, pool.Register(ctx, 2026, "north", "farm-1", 2, 1500, farmer))

	assert.ErrorIs(t, pool.Activate(ctx, 2026, "north", "farm-1", insurer), models.ErrInvalidState, "must be validated first")

	require.NoError(t, pool.Validate(ctx, 2026, "north", "farm-1", 1500, government))
	assert.ErrorIs(t, pool.Activate(ctx, 2026, "north", "farm-1", government), models.ErrUnauthorized)

	require.NoError(t, pool.Activate(ctx, 2026, "north", "farm-1", insurer))
	policy, err := pool.GetPolicy(2026, "north", "farm-1")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyInsured, policy.State)
	assert.Equal(t, insurer, policy.Insurer)

	assert.ErrorIs(t, pool.Activate(ctx, 2026, "north", "farm-1", insurer), models.ErrInvalidState)
}

func TestProcess_RequiresClosedSeasonAndKeeper(t *testing.T) {
	ctx := context.Background()
	oracle, _, pool := newTestPool(t)
	registerPolicy(t, pool, "farm-1", models.PolicyInsured)

	assert.ErrorIs(t, pool.Process(ctx, 2026, "north", keeper), models.ErrInvalidState, "season still open")

	oracle.states[2026] = models.SeasonClosed
	assert.ErrorIs(t, pool.Process(ctx, 2026, "north", farmer), models.ErrUnauthorized)
}

func TestProcess_NeverValidated_RefundsFarmer(t *testing.T) {
	ctx := context.Background()
	oracle, escrow, pool := newTestPool(t)
	registerPolicy(t, pool, "farm-1", models.PolicyRegistered)
	oracle.states[2026] = models.SeasonClosed

	require.NoError(t, pool.Process(ctx, 2026, "north", keeper))

	policy, err := pool.GetPolicy(2026, "north", "farm-1")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyClosed, policy.State)
	assert.Equal(t, int64(1500), escrow.BalanceOf(farmer), "full stake back")
	assert.Equal(t, int64(0), escrow.BalanceOf(government))
	assert.Equal(t, int64(100), escrow.BalanceOf(keeper))
	assert.Equal(t, int64(0), policy.Compensation)
}

func TestProcess_ValidatedNotActivated_RefundsBoth(t *testing.T) {
	ctx := context.Background()
	oracle, escrow, pool := newTestPool(t)
	registerPolicy(t, pool, "farm-1", models.PolicyValidated)
	oracle.states[2026] = models.SeasonClosed
	oracle.severities["north"] = models.SeverityD4

	require.NoError(t, pool.Process(ctx, 2026, "north", keeper))

	policy, err := pool.GetPolicy(2026, "north", "farm-1")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyClosed, policy.State, "no insurer means no payout, whatever the severity")
	assert.Equal(t, int64(1500), escrow.BalanceOf(farmer))
	assert.Equal(t, int64(1500), escrow.BalanceOf(government))
	assert.Equal(t, int64(1500), policy.ChangeGovernment)
}

func TestProcess_ActivatedNoAggregation_RefundsBoth(t *testing.T) {
	ctx := context.Background()
	oracle, escrow, pool := newTestPool(t)
	registerPolicy(t, pool, "farm-1", models.PolicyInsured)
	oracle.states[2026] = models.SeasonClosed

	require.NoError(t, pool.Process(ctx, 2026, "north", keeper))

	policy, err := pool.GetPolicy(2026, "north", "farm-1")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyClosed, policy.State)
	assert.Equal(t, models.SeverityDefault, policy.Severity)
	assert.Equal(t, int64(1500), escrow.BalanceOf(farmer))
	assert.Equal(t, int64(1500), escrow.BalanceOf(government))
}

func TestProcess_ActivatedD0_PaysNothing(t *testing.T) {
	ctx := context.Background()
	oracle, escrow, pool := newTestPool(t)
	registerPolicy(t, pool, "farm-1", models.PolicyInsured)
	oracle.states[2026] = models.SeasonClosed
	oracle.severities["north"] = models.SeverityD0

	balanceBefore := pool.Balance()
	require.NoError(t, pool.Process(ctx, 2026, "north", keeper))

	policy, err := pool.GetPolicy(2026, "north", "farm-1")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyClosed, policy.State)
	assert.Equal(t, models.SeverityD0, policy.Severity)
	assert.Equal(t, int64(0), policy.Compensation)
	assert.Equal(t, int64(0), escrow.BalanceOf(farmer))
	assert.Equal(t, balanceBefore-100, pool.Balance(), "only the keeper fee leaves the pool")
}

func TestProcess_CompensationRatios(t *testing.T) {
	tests := []struct {
		severity models.Severity
		payout   int64
	}{
		{models.SeverityD1, 1500},  // 3000 * 5/10
		{models.SeverityD2, 3000},  // 3000 * 10/10
		{models.SeverityD3, 4500},  // 3000 * 15/10
		{models.SeverityD4, 7500},  // 3000 * 25/10
	}
	for _, tc := range tests {
		t.Run(string(tc.severity), func(t *testing.T) {
			ctx := context.Background()
			oracle, escrow, pool := newTestPool(t)
			registerPolicy(t, pool, "farm-1", models.PolicyInsured)
			oracle.states[2026] = models.SeasonClosed
			oracle.severities["north"] = tc.severity

			require.NoError(t, pool.Process(ctx, 2026, "north", keeper))

			policy, err := pool.GetPolicy(2026, "north", "farm-1")
			require.NoError(t, err)
			assert.Equal(t, models.PolicyCompensated, policy.State)
			assert.Equal(t, tc.payout, policy.Compensation)
			assert.Equal(t, tc.payout, escrow.BalanceOf(farmer))
			assert.Equal(t, int64(0), escrow.BalanceOf(government), "the government stake backs the payout")
		})
	}
}

func TestProcess_MovesContractsAndShrinksFloor(t *testing.T) {
	ctx := context.Background()
	oracle, _, pool := newTestPool(t)
	registerPolicy(t, pool, "farm-1", models.PolicyInsured)
	registerPolicy(t, pool, "farm-2", models.PolicyRegistered)
	oracle.states[2026] = models.SeasonClosed
	oracle.severities["north"] = models.SeverityD1

	require.NoError(t, pool.Process(ctx, 2026, "north", keeper))

	assert.Equal(t, 0, pool.GetNumberOpenContracts(2026, "north"))
	assert.Equal(t, 2, pool.GetNumberClosedContracts(2026, "north"))
	assert.Equal(t, int64(0), pool.TotalOpenContracts())
	assert.Equal(t, int64(0), pool.TotalOpenSize())
	assert.Equal(t, int64(0), pool.MinimumAmount())
	assert.Empty(t, pool.OpenRegions(2026))

	closed, err := pool.GetClosedContractAt(2026, "north", 0)
	require.NoError(t, err)
	assert.Contains(t, []models.PolicyState{models.PolicyClosed, models.PolicyCompensated}, closed.State)

	// settling an already settled region is a harmless no-op
	require.NoError(t, pool.Process(ctx, 2026, "north", keeper))
	assert.Equal(t, 2, pool.GetNumberClosedContracts(2026, "north"))
}

func TestProcess_InsufficientFundsAppliesNothing(t *testing.T) {
	ctx := context.Background()
	g := newTestGatekeeper(t)
	oracle := newStubOracle()
	oracle.states[2026] = models.SeasonOpen
	escrow := NewEscrow("insurance", nil)
	pool := NewInsurancePool(g, oracle, escrow, config.DefaultProtocolConfig(), nil)

	// just enough liquidity to register one 2 ha policy
	require.NoError(t, pool.Fund(ctx, insurer, 6_100))
	registerPolicy(t, pool, "farm-1", models.PolicyInsured)

	oracle.states[2026] = models.SeasonClosed
	oracle.severities["north"] = models.SeverityD4
	require.Equal(t, int64(9_100), pool.Balance())

	// D4 owes 7500 plus the keeper fee; shrink the balance below that
	pool.balance = 7_000

	err := pool.Process(ctx, 2026, "north", keeper)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	policy, err := pool.GetPolicy(2026, "north", "farm-1")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyInsured, policy.State, "nothing was applied")
	assert.Equal(t, int64(0), escrow.BalanceOf(farmer))
	assert.Equal(t, int64(7_000), pool.Balance())
	assert.Equal(t, 1, pool.GetNumberOpenContracts(2026, "north"))
}

// TestFullLifecycle drives the real oracle engine and the pool together from
// season open to a compensated policy, checking money conservation at the end.
func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	g := newTestGatekeeper(t)
	for _, account := range []string{oracle2, oracle3} {
		require.NoError(t, g.AddAssignment(ctx, models.OracleRole, account, admin))
	}
	cfg := config.DefaultProtocolConfig()
	oracleEscrow := NewEscrow("oracle", nil)
	insuranceEscrow := NewEscrow("insurance", nil)
	oracle := NewOracleCore(g, oracleEscrow, cfg, nil)
	pool := NewInsurancePool(g, oracle, insuranceEscrow, cfg, nil)

	require.NoError(t, oracle.Fund(ctx, insurer, 1_000))
	require.NoError(t, pool.Fund(ctx, insurer, 50_000))

	require.NoError(t, oracle.OpenSeason(ctx, 2026, keeper))
	require.NoError(t, pool.Register(ctx, 2026, "north", "farm-1", 2, 1500, farmer))
	require.NoError(t, pool.Validate(ctx, 2026, "north", "farm-1", 1500, government))
	require.NoError(t, pool.Activate(ctx, 2026, "north", "farm-1", insurer))

	require.NoError(t, oracle.Submit(ctx, 2026, "north", models.SeverityD2, oracle1))
	require.NoError(t, oracle.Submit(ctx, 2026, "north", models.SeverityD2, oracle2))
	require.NoError(t, oracle.Submit(ctx, 2026, "north", models.SeverityD1, oracle3))
	require.NoError(t, oracle.CloseSeason(ctx, 2026, keeper))

	severity, err := oracle.Aggregate(ctx, 2026, "north", keeper)
	require.NoError(t, err)
	require.Equal(t, models.SeverityD2, severity)

	require.NoError(t, pool.Process(ctx, 2026, "north", keeper))

	policy, err := pool.GetPolicy(2026, "north", "farm-1")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyCompensated, policy.State)
	assert.Equal(t, int64(3000), policy.Compensation, "D2 pays the whole combined stake")

	// every unit funded or staked is either still pooled or withdrawable
	funded := int64(1_000 + 50_000 + 1500 + 1500)
	held := oracle.Balance() + pool.Balance() + oracleEscrow.TotalHeld() + insuranceEscrow.TotalHeld()
	assert.Equal(t, funded, held)

	amount, err := insuranceEscrow.Withdraw(ctx, farmer)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), amount)
}

func TestPool_BreakerSuspendsLifecycle(t *testing.T) {
	ctx := context.Background()
	g := newTestGatekeeper(t)
	oracle := newStubOracle()
	oracle.states[2026] = models.SeasonOpen
	pool := NewInsurancePool(g, oracle, NewEscrow("insurance", nil), config.DefaultProtocolConfig(), nil)
	require.NoError(t, pool.Fund(ctx, insurer, 100_000))
	require.NoError(t, pool.Register(ctx, 2026, "north", "farm-1", 2, 1500, farmer))

	require.NoError(t, g.SwitchOff(ctx, deployer))

	assert.ErrorIs(t, pool.Fund(ctx, insurer, 100), models.ErrContractSuspended)
	assert.ErrorIs(t, pool.Validate(ctx, 2026, "north", "farm-1", 1500, government), models.ErrContractSuspended)
	assert.ErrorIs(t, pool.Process(ctx, 2026, "north", keeper), models.ErrContractSuspended)

	require.NoError(t, g.SwitchOn(ctx, deployer))
	require.NoError(t, pool.Validate(ctx, 2026, "north", "farm-1", 1500, government))
}
