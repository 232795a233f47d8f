package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig is the invoicing policy. Values are fixed for the port domain
// but kept out of business logic so operators can review them in one place.
type BillingConfig struct {
	CutoffDays               []int         `mapstructure:"cutoffDays"`
	Timezone                 string        `mapstructure:"timezone"`
	SettlementCurrency       string        `mapstructure:"settlementCurrency"`
	RateFallbackMaxDays      int           `mapstructure:"rateFallbackMaxDays"`
	RateLookupTimeout        time.Duration `mapstructure:"rateLookupTimeout"`
	RegenerationLookbackDays int           `mapstructure:"regenerationLookbackDays"`
	BatchConcurrency         int           `mapstructure:"batchConcurrency"`
	LockTTL                  time.Duration `mapstructure:"lockTTL"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		CutoffDays:               []int{7, 14, 21, 28},
		Timezone:                 "Europe/Istanbul",
		SettlementCurrency:       "TRY",
		RateFallbackMaxDays:      10,
		RateLookupTimeout:        5 * time.Second,
		RegenerationLookbackDays: 35,
		BatchConcurrency:         8,
		LockTTL:                  30 * time.Second,
	}
}

// Location resolves the billing timezone, falling back to UTC.
func (c BillingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil || strings.TrimSpace(c.Timezone) == "" {
		return time.UTC
	}
	return loc
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(appCfg Config, log *zap.Logger) (*BillingConfigHolder, error) {
	v := viper.New()

	if appCfg.BillingConfigPath != "" {
		v.SetConfigFile(appCfg.BillingConfigPath)
	} else {
		v.SetConfigName("billing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/portbill")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PORTBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setBillingDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("billing config file not found, using defaults")
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingConfig(v)
		if err != nil {
			log.Warn("billing config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func setBillingDefaults(v *viper.Viper) {
	defaults := DefaultBillingConfig()
	v.SetDefault("billing.cutoffDays", defaults.CutoffDays)
	v.SetDefault("billing.timezone", defaults.Timezone)
	v.SetDefault("billing.settlementCurrency", defaults.SettlementCurrency)
	v.SetDefault("billing.rateFallbackMaxDays", defaults.RateFallbackMaxDays)
	v.SetDefault("billing.rateLookupTimeout", defaults.RateLookupTimeout)
	v.SetDefault("billing.regenerationLookbackDays", defaults.RegenerationLookbackDays)
	v.SetDefault("billing.batchConcurrency", defaults.BatchConcurrency)
	v.SetDefault("billing.lockTTL", defaults.LockTTL)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var doc struct {
		Billing BillingConfig `mapstructure:"billing"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return BillingConfig{}, err
	}
	cfg := doc.Billing
	cfg.SettlementCurrency = strings.ToUpper(strings.TrimSpace(cfg.SettlementCurrency))
	if err := ValidateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

// ValidateBillingConfig rejects policies that would break period bucketing.
func ValidateBillingConfig(cfg BillingConfig) error {
	if len(cfg.CutoffDays) == 0 {
		return errors.New("billing.cutoffDays cannot be empty")
	}
	prev := 0
	for _, day := range cfg.CutoffDays {
		if day < 1 || day > 28 {
			return fmt.Errorf("billing.cutoffDays: %d outside 1..28", day)
		}
		if day <= prev {
			return errors.New("billing.cutoffDays must be strictly ascending")
		}
		prev = day
	}
	if len(cfg.SettlementCurrency) != 3 {
		return fmt.Errorf("billing.settlementCurrency: invalid code %q", cfg.SettlementCurrency)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("billing.timezone: %w", err)
	}
	if cfg.RateFallbackMaxDays < 0 {
		return errors.New("billing.rateFallbackMaxDays cannot be negative")
	}
	if cfg.RateLookupTimeout <= 0 {
		return errors.New("billing.rateLookupTimeout must be positive")
	}
	if cfg.RegenerationLookbackDays < 1 {
		return errors.New("billing.regenerationLookbackDays must be at least 1")
	}
	if cfg.BatchConcurrency < 1 {
		return errors.New("billing.batchConcurrency must be at least 1")
	}
	return nil
}
