package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// BillingConfig carries the tuition policy defaults used when a generation
// request leaves a field empty.
type BillingConfig struct {
	DefaultMode           string `mapstructure:"defaultMode"`
	AmountPerCredit       string `mapstructure:"amountPerCredit"`
	SemesterFee           string `mapstructure:"semesterFee"`
	DiscountPercentage    string `mapstructure:"discountPercentage"`
	DefaultDueDays        int    `mapstructure:"defaultDueDays"`
	IncludeCarriedBalance bool   `mapstructure:"includeCarriedBalance"`
	GenerationLockTTL     string `mapstructure:"generationLockTTL"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DefaultMode:           "PER_CREDIT",
		AmountPerCredit:       "0",
		SemesterFee:           "0",
		DiscountPercentage:    "0",
		DefaultDueDays:        30,
		IncludeCarriedBalance: true,
		GenerationLockTTL:     "5m",
	}
}

func (c BillingConfig) AmountPerCreditValue() decimal.Decimal {
	return mustDecimal(c.AmountPerCredit)
}

func (c BillingConfig) SemesterFeeValue() decimal.Decimal {
	return mustDecimal(c.SemesterFee)
}

func (c BillingConfig) DiscountPercentageValue() decimal.Decimal {
	return mustDecimal(c.DiscountPercentage)
}

func (c BillingConfig) LockTTL() time.Duration {
	ttl, err := time.ParseDuration(strings.TrimSpace(c.GenerationLockTTL))
	if err != nil || ttl <= 0 {
		return 5 * time.Minute
	}
	return ttl
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder pinned to cfg, without file watching.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(path string) (*BillingConfigHolder, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("billing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/bursar")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BURSAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.defaultMode", defaults.DefaultMode)
	v.SetDefault("billing.amountPerCredit", defaults.AmountPerCredit)
	v.SetDefault("billing.semesterFee", defaults.SemesterFee)
	v.SetDefault("billing.discountPercentage", defaults.DiscountPercentage)
	v.SetDefault("billing.defaultDueDays", defaults.DefaultDueDays)
	v.SetDefault("billing.includeCarriedBalance", defaults.IncludeCarriedBalance)
	v.SetDefault("billing.generationLockTTL", defaults.GenerationLockTTL)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated BillingConfig
			if err := v.UnmarshalKey("billing", &updated); err != nil {
				log.Printf("[billing-config] reload failed: %v", err)
				return
			}
			if err := validateBillingConfig(updated); err != nil {
				log.Printf("[billing-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[billing-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	switch strings.ToUpper(strings.TrimSpace(cfg.DefaultMode)) {
	case "PER_CREDIT", "FLAT":
	default:
		return fmt.Errorf("billing.defaultMode %q is not supported", cfg.DefaultMode)
	}
	for key, raw := range map[string]string{
		"billing.amountPerCredit":    cfg.AmountPerCredit,
		"billing.semesterFee":        cfg.SemesterFee,
		"billing.discountPercentage": cfg.DiscountPercentage,
	} {
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if value.IsNegative() {
			return fmt.Errorf("%s cannot be negative", key)
		}
	}
	if mustDecimal(cfg.DiscountPercentage).GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("billing.discountPercentage cannot exceed 100")
	}
	if cfg.DefaultDueDays < 0 {
		return errors.New("billing.defaultDueDays cannot be negative")
	}
	return nil
}

func mustDecimal(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return value
}
