package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr string
	RedisDB   int

	IdempTTLSecs int

	// Chain gateway endpoints and the program whose logs we follow.
	ChainRPCURL    string
	ChainWSURL     string
	ChainProgramID string
	OperatorWallet string

	// Settlement tuning. SweepInterval drives the lifecycle sweeper cadence,
	// ConfirmTimeout bounds how long a submitted transfer may stay pending.
	SweepInterval          time.Duration
	GracePeriod            time.Duration
	ConfirmTimeout         time.Duration
	StatusPollInterval     time.Duration
	MaxLiquidationAttempts int

	LogLevel  string
	LogFormat string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvDuration(k string, d time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			return dur
		}
	}
	return d
}

func Load() *Config {
	return &Config{
		AppPort:   getenv("APP_PORT", "8080"),
		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "credlend"),
		MySQLUser: getenv("MYSQL_USER", "credlend"),
		MySQLPass: getenv("MYSQL_PASS", "credlend"),

		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		RedisDB:      getenvInt("REDIS_DB", 0),
		IdempTTLSecs: getenvInt("IDEMPOTENCY_TTL_SECONDS", 300),

		ChainRPCURL:    getenv("CHAIN_RPC_URL", "http://localhost:8899"),
		ChainWSURL:     getenv("CHAIN_WS_URL", "ws://localhost:8900"),
		ChainProgramID: getenv("CHAIN_PROGRAM_ID", ""),
		OperatorWallet: getenv("OPERATOR_WALLET", ""),

		SweepInterval:          getenvDuration("SWEEP_INTERVAL", 5*time.Minute),
		GracePeriod:            getenvDuration("GRACE_PERIOD", 7*24*time.Hour),
		ConfirmTimeout:         getenvDuration("CONFIRM_TIMEOUT", 2*time.Minute),
		StatusPollInterval:     getenvDuration("STATUS_POLL_INTERVAL", 10*time.Second),
		MaxLiquidationAttempts: getenvInt("MAX_LIQUIDATION_ATTEMPTS", 3),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),
	}
}

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	// ensure port is valid
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.ChainRPCURL == "" || c.ChainWSURL == "" {
		return errors.New("missing chain endpoints (CHAIN_RPC_URL/CHAIN_WS_URL)")
	}
	if c.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if c.ConfirmTimeout <= 0 {
		return errors.New("CONFIRM_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
