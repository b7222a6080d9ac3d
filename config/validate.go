package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"tripartite/native/arbitration"
)

const (
	defaultFeeUnit       = "1000000000000000000"
	defaultProcedureUnit = "5m"
)

// Validate checks the values that cannot be defaulted.
func (cfg *Config) Validate() error {
	if _, err := cfg.ArbitrationParams(); err != nil {
		return err
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	return nil
}

// ArbitrationParams parses the fee and procedure units.
func (cfg *Config) ArbitrationParams() (arbitration.Params, error) {
	fee, ok := new(big.Int).SetString(strings.TrimSpace(cfg.FeeUnit), 10)
	if !ok {
		return arbitration.Params{}, fmt.Errorf("invalid FeeUnit %q", cfg.FeeUnit)
	}
	unit, err := time.ParseDuration(strings.TrimSpace(cfg.ProcedureUnit))
	if err != nil {
		return arbitration.Params{}, fmt.Errorf("invalid ProcedureUnit: %w", err)
	}
	if unit%time.Second != 0 {
		return arbitration.Params{}, fmt.Errorf("ProcedureUnit %s is not a whole number of seconds", unit)
	}
	params := arbitration.Params{FeeUnit: fee, ProcedureUnit: int64(unit / time.Second)}
	if err := params.Validate(); err != nil {
		return arbitration.Params{}, err
	}
	return params, nil
}
