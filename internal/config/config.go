package config

import (
	"os"
	"strconv"
	"strings"

	"settlement-service/internal/models"
)

type SettlementServiceConfig struct {
	Port        string
	JWTSecret   string
	Deployer    string
	PostgresCfg PostgresConfig
	RedisCfg    RedisConfig
	RabbitMQCfg RabbitMQConfig
	ProtocolCfg ProtocolConfig
	KeeperCfg   KeeperConfig
}

type PostgresConfig struct {
	DBname   string
	Username string
	Password string
	Host     string
	Port     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	Username string
	Password string
	Host     string
	Port     string
}

// KeeperConfig drives the optional keeper automation. When Account is empty
// the automaton is not started and lifecycle transitions stay manual.
type KeeperConfig struct {
	Account  string
	Schedule string
	Workers  int
}

// ProtocolConfig carries the protocol economics. All amounts are in the
// smallest currency unit. PayoutRatios are tenths of the combined stake per
// aggregated severity; D0 pays nothing and is not in the table.
type ProtocolConfig struct {
	PremiumPerHA       int64
	OracleFee          int64
	OracleKeeperFee    int64
	InsuranceKeeperFee int64
	PayoutRatios       map[models.Severity]int64
}

// HalfPremiumPerHA is the stake each of farmer and government puts up per
// hectare.
func (p ProtocolConfig) HalfPremiumPerHA() int64 {
	return p.PremiumPerHA / 2
}

// PayoutRatio returns the tenths-of-stake ratio for a severity, zero when
// the severity does not qualify for compensation.
func (p ProtocolConfig) PayoutRatio(severity models.Severity) int64 {
	return p.PayoutRatios[severity]
}

// WorstCaseRatio is the highest ratio in the table, used for the liquidity
// floor.
func (p ProtocolConfig) WorstCaseRatio() int64 {
	var worst int64
	for _, ratio := range p.PayoutRatios {
		if ratio > worst {
			worst = ratio
		}
	}
	return worst
}

// DefaultProtocolConfig anchors D1 and D4 on the observed protocol constants
// and interpolates D2/D3 monotonically between them.
func DefaultProtocolConfig() ProtocolConfig {
	return ProtocolConfig{
		PremiumPerHA:       1500,
		OracleFee:          50,
		OracleKeeperFee:    100,
		InsuranceKeeperFee: 100,
		PayoutRatios: map[models.Severity]int64{
			models.SeverityD1: 5,
			models.SeverityD2: 10,
			models.SeverityD3: 15,
			models.SeverityD4: 25,
		},
	}
}

func New() *SettlementServiceConfig {
	return &SettlementServiceConfig{
		Port:      getEnvOrDefault("PORT", "8086"),
		JWTSecret: getEnvOrDefault("JWT_SECRET", ""),
		Deployer:  getEnvOrDefault("DEPLOYER_ACCOUNT", "deployer"),
		PostgresCfg: PostgresConfig{
			DBname:   getEnvOrDefault("POSTGRES_DB", "settlement"),
			Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
		},
		RedisCfg: RedisConfig{
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       0,
		},
		RabbitMQCfg: RabbitMQConfig{
			Username: getEnvOrDefault("RABBITMQ_USER", "admin"),
			Password: getEnvOrDefault("RABBITMQ_PWD", "admin"),
			Host:     getEnvOrDefault("RABBITMQ_HOST", "localhost"),
			Port:     getEnvOrDefault("RABBITMQ_PORT", "5672"),
		},
		ProtocolCfg: protocolFromEnv(),
		KeeperCfg: KeeperConfig{
			Account:  getEnvOrDefault("KEEPER_ACCOUNT", ""),
			Schedule: getEnvOrDefault("KEEPER_SCHEDULE", "@every 5m"),
			Workers:  int(getEnvInt64("KEEPER_WORKERS", 2)),
		},
	}
}

func protocolFromEnv() ProtocolConfig {
	cfg := DefaultProtocolConfig()
	cfg.PremiumPerHA = getEnvInt64("PREMIUM_PER_HA", cfg.PremiumPerHA)
	cfg.OracleFee = getEnvInt64("ORACLE_FEE", cfg.OracleFee)
	cfg.OracleKeeperFee = getEnvInt64("ORACLE_KEEPER_FEE", cfg.OracleKeeperFee)
	cfg.InsuranceKeeperFee = getEnvInt64("INSURANCE_KEEPER_FEE", cfg.InsuranceKeeperFee)

	// PAYOUT_RATIOS is the D1..D4 table as comma-separated tenths, e.g.
	// "5,10,15,25". An invalid value keeps the defaults.
	if raw := os.Getenv("PAYOUT_RATIOS"); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) == 4 {
			ratios := make(map[models.Severity]int64, 4)
			valid := true
			for i, part := range parts {
				ratio, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
				if err != nil || ratio < 0 {
					valid = false
					break
				}
				ratios[models.SeverityFromLevel(i+1)] = ratio
			}
			if valid {
				cfg.PayoutRatios = ratios
			}
		}
	}
	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
