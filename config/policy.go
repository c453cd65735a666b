package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joeshaw/envdecode"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/kevinaaaquil/library/backend/policy"
)

// yamlDecimal reads a money amount written either as a number or a string.
type yamlDecimal struct {
	decimal.Decimal
}

func (d *yamlDecimal) UnmarshalYAML(value *yaml.Node) error {
	v, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid amount %q", value.Line, value.Value)
	}
	d.Decimal = v
	return nil
}

// policyFile lists the keys a policy file may set; absent keys keep the default.
type policyFile struct {
	MaxActiveLoans             *int         `yaml:"maxActiveLoans"`
	MaxExtensions              *int         `yaml:"maxExtensions"`
	ReservationValidityDays    *int         `yaml:"reservationValidityDays"`
	LateFeePerDay              *yamlDecimal `yaml:"lateFeePerDay"`
	NotificationRetentionDays  *int         `yaml:"notificationRetentionDays"`
	ReserveOnlyWhenUnavailable *bool        `yaml:"reserveOnlyWhenUnavailable"`
	ReserveRequiresActive      *bool        `yaml:"reserveRequiresActiveReader"`
}

type policyEnv struct {
	MaxActiveLoans             string `env:"POLICY_MAX_ACTIVE_LOANS"`
	MaxExtensions              string `env:"POLICY_MAX_EXTENSIONS"`
	ReservationValidityDays    string `env:"POLICY_RESERVATION_VALIDITY_DAYS"`
	LateFeePerDay              string `env:"POLICY_LATE_FEE_PER_DAY"`
	NotificationRetentionDays  string `env:"NOTIFICATION_RETENTION_DAYS"`
	ReserveOnlyWhenUnavailable string `env:"POLICY_RESERVE_ONLY_WHEN_UNAVAILABLE"`
	ReserveRequiresActive      string `env:"POLICY_RESERVE_REQUIRES_ACTIVE_READER"`
}

// LoadPolicy starts from policy.Default, applies the YAML file at path (if
// any), then environment overrides, and validates the result.
func LoadPolicy(path string) (policy.Policy, error) {
	p := policy.Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return p, fmt.Errorf("read policy file: %w", err)
		}
		var f policyFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return p, fmt.Errorf("parse policy file %s: %w", path, err)
		}
		f.apply(&p)
	}
	if err := applyPolicyEnv(&p); err != nil {
		return p, err
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}

func (f policyFile) apply(p *policy.Policy) {
	if f.MaxActiveLoans != nil {
		p.MaxActiveLoans = *f.MaxActiveLoans
	}
	if f.MaxExtensions != nil {
		p.MaxExtensions = *f.MaxExtensions
	}
	if f.ReservationValidityDays != nil {
		p.ReservationValidityDays = *f.ReservationValidityDays
	}
	if f.LateFeePerDay != nil {
		p.LateFeePerDay = f.LateFeePerDay.Decimal
	}
	if f.NotificationRetentionDays != nil {
		p.NotificationRetentionDays = *f.NotificationRetentionDays
	}
	if f.ReserveOnlyWhenUnavailable != nil {
		p.ReserveOnlyWhenUnavailable = *f.ReserveOnlyWhenUnavailable
	}
	if f.ReserveRequiresActive != nil {
		p.ReserveRequiresActiveReader = *f.ReserveRequiresActive
	}
}

func applyPolicyEnv(p *policy.Policy) error {
	var env policyEnv
	if err := envdecode.Decode(&env); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return fmt.Errorf("decode policy env: %w", err)
	}
	ints := []struct {
		name string
		raw  string
		dst  *int
	}{
		{"POLICY_MAX_ACTIVE_LOANS", env.MaxActiveLoans, &p.MaxActiveLoans},
		{"POLICY_MAX_EXTENSIONS", env.MaxExtensions, &p.MaxExtensions},
		{"POLICY_RESERVATION_VALIDITY_DAYS", env.ReservationValidityDays, &p.ReservationValidityDays},
		{"NOTIFICATION_RETENTION_DAYS", env.NotificationRetentionDays, &p.NotificationRetentionDays},
	}
	for _, v := range ints {
		if v.raw == "" {
			continue
		}
		n, err := strconv.Atoi(v.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", v.name, err)
		}
		*v.dst = n
	}
	if env.LateFeePerDay != "" {
		fee, err := decimal.NewFromString(env.LateFeePerDay)
		if err != nil {
			return fmt.Errorf("POLICY_LATE_FEE_PER_DAY: %w", err)
		}
		p.LateFeePerDay = fee
	}
	bools := []struct {
		name string
		raw  string
		dst  *bool
	}{
		{"POLICY_RESERVE_ONLY_WHEN_UNAVAILABLE", env.ReserveOnlyWhenUnavailable, &p.ReserveOnlyWhenUnavailable},
		{"POLICY_RESERVE_REQUIRES_ACTIVE_READER", env.ReserveRequiresActive, &p.ReserveRequiresActiveReader},
	}
	for _, v := range bools {
		if v.raw == "" {
			continue
		}
		b, err := strconv.ParseBool(v.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", v.name, err)
		}
		*v.dst = b
	}
	return nil
}
