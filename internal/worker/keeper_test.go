package worker

import (
	"context"
	"testing"

	"settlement-service/internal/config"
	"settlement-service/internal/models"
	"settlement-service/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSettledWorld(t *testing.T) (*services.OracleCore, *services.InsurancePool, *services.Escrow) {
	t.Helper()
	ctx := context.Background()
	g := services.NewGatekeeper("deployer", nil)

	require.NoError(t, g.AddRole(ctx, models.AdminRole, models.DefaultAdminRole, "deployer"))
	require.NoError(t, g.AddAssignment(ctx, models.AdminRole, "admin", "deployer"))
	for _, role := range []models.RoleID{
		models.InsurerRole, models.GovernmentRole, models.FarmerRole,
		models.OracleRole, models.KeeperRole,
	} {
		require.NoError(t, g.AddRole(ctx, role, models.AdminRole, "admin"))
	}
	require.NoError(t, g.AddAssignment(ctx, models.InsurerRole, "insurer", "admin"))
	require.NoError(t, g.AddAssignment(ctx, models.GovernmentRole, "government", "admin"))
	require.NoError(t, g.AddAssignment(ctx, models.FarmerRole, "farmer", "admin"))
	require.NoError(t, g.AddAssignment(ctx, models.OracleRole, "oracle-1", "admin"))
	require.NoError(t, g.AddAssignment(ctx, models.KeeperRole, "automaton", "admin"))
	require.NoError(t, g.AddAssignment(ctx, models.KeeperRole, "keeper", "admin"))

	cfg := config.DefaultProtocolConfig()
	oracleEscrow := services.NewEscrow("oracle", nil)
	insuranceEscrow := services.NewEscrow("insurance", nil)
	oracle := services.NewOracleCore(g, oracleEscrow, cfg, nil)
	pool := services.NewInsurancePool(g, oracle, insuranceEscrow, cfg, nil)

	require.NoError(t, oracle.Fund(ctx, "insurer", 1_000))
	require.NoError(t, pool.Fund(ctx, "insurer", 50_000))

	require.NoError(t, oracle.OpenSeason(ctx, 2026, "keeper"))
	require.NoError(t, pool.Register(ctx, 2026, "north", "farm-1", 2, 1500, "farmer"))
	require.NoError(t, pool.Validate(ctx, 2026, "north", "farm-1", 1500, "government"))
	require.NoError(t, pool.Activate(ctx, 2026, "north", "farm-1", "insurer"))
	require.NoError(t, oracle.Submit(ctx, 2026, "north", models.SeverityD3, "oracle-1"))
	require.NoError(t, oracle.CloseSeason(ctx, 2026, "keeper"))

	return oracle, pool, insuranceEscrow
}

func TestSettleRegion_AggregatesThenSettles(t *testing.T) {
	oracle, pool, escrow := newSettledWorld(t)
	automaton := NewKeeperAutomaton(oracle, pool, config.KeeperConfig{
		Account:  "automaton",
		Schedule: "@every 1h",
		Workers:  1,
	})

	require.NoError(t, automaton.settleRegion(context.Background(), 2026, "north"))

	assert.True(t, oracle.IsAggregated(2026, "north"))
	assert.Equal(t, models.SeverityD3, oracle.GetAggregatedSeverity(2026, "north"))

	policy, err := pool.GetPolicy(2026, "north", "farm-1")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyCompensated, policy.State)
	assert.Equal(t, int64(4500), policy.Compensation, "3000 staked at the D3 ratio")
	assert.Equal(t, int64(4500), escrow.BalanceOf("farmer"))
}

func TestSettleRegion_ToleratesPriorAggregation(t *testing.T) {
	oracle, pool, _ := newSettledWorld(t)
	_, err := oracle.Aggregate(context.Background(), 2026, "north", "keeper")
	require.NoError(t, err)

	automaton := NewKeeperAutomaton(oracle, pool, config.KeeperConfig{
		Account:  "automaton",
		Schedule: "@every 1h",
		Workers:  1,
	})
	require.NoError(t, automaton.settleRegion(context.Background(), 2026, "north"))

	policy, err := pool.GetPolicy(2026, "north", "farm-1")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyCompensated, policy.State)
}

func TestSettleRegion_UnauthorizedKeeperAccount(t *testing.T) {
	oracle, pool, _ := newSettledWorld(t)
	automaton := NewKeeperAutomaton(oracle, pool, config.KeeperConfig{
		Account:  "stranger",
		Schedule: "@every 1h",
		Workers:  1,
	})

	err := automaton.settleRegion(context.Background(), 2026, "north")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
