package config

import (
	"testing"

	"settlement-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProtocolConfig(t *testing.T) {
	cfg := DefaultProtocolConfig()

	assert.Equal(t, int64(750), cfg.HalfPremiumPerHA())
	assert.Equal(t, int64(25), cfg.WorstCaseRatio())
	assert.Equal(t, int64(5), cfg.PayoutRatio(models.SeverityD1))
	assert.Equal(t, int64(0), cfg.PayoutRatio(models.SeverityD0), "D0 never pays")
	assert.Equal(t, int64(0), cfg.PayoutRatio(models.SeverityDefault))
}

func TestProtocolFromEnv_PayoutRatios(t *testing.T) {
	t.Setenv("PAYOUT_RATIOS", "4,8,12,20")
	cfg := protocolFromEnv()

	assert.Equal(t, int64(4), cfg.PayoutRatio(models.SeverityD1))
	assert.Equal(t, int64(20), cfg.PayoutRatio(models.SeverityD4))
	assert.Equal(t, int64(20), cfg.WorstCaseRatio())
}

func TestProtocolFromEnv_InvalidRatiosKeepDefaults(t *testing.T) {
	for _, raw := range []string{"4,8,12", "a,b,c,d", "5,10,-1,25"} {
		t.Setenv("PAYOUT_RATIOS", raw)
		cfg := protocolFromEnv()
		require.Equal(t, DefaultProtocolConfig().PayoutRatios, cfg.PayoutRatios, raw)
	}
}

func TestProtocolFromEnv_FeeOverrides(t *testing.T) {
	t.Setenv("PREMIUM_PER_HA", "2000")
	t.Setenv("ORACLE_FEE", "75")
	cfg := protocolFromEnv()

	assert.Equal(t, int64(2000), cfg.PremiumPerHA)
	assert.Equal(t, int64(1000), cfg.HalfPremiumPerHA())
	assert.Equal(t, int64(75), cfg.OracleFee)
}
