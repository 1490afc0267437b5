package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig holds the billing rules that operators tune without a redeploy.
type BillingConfig struct {
	Currency         string         `mapstructure:"currency"`
	DefaultTaxRate   float64        `mapstructure:"defaultTaxRate"`
	PaymentTermsDays int            `mapstructure:"paymentTermsDays"`
	TrialDays        int            `mapstructure:"trialDays"`
	YearlyDiscount   float64        `mapstructure:"yearlyDiscountPercent"`
	NumberPrefixes   NumberPrefixes `mapstructure:"numberPrefixes"`
	Dunning          DunningConfig  `mapstructure:"dunning"`
	Voucher          VoucherConfig  `mapstructure:"voucher"`
	Issuer           IssuerConfig   `mapstructure:"issuer"`
}

// IssuerConfig is the platform operator printed on tenant invoices.
type IssuerConfig struct {
	Name      string         `mapstructure:"name"`
	Email     string         `mapstructure:"email"`
	VATNumber string         `mapstructure:"vatNumber"`
	Address   map[string]any `mapstructure:"address"`
}

type NumberPrefixes struct {
	Club    string `mapstructure:"club"`
	Tenant  string `mapstructure:"tenant"`
	Default string `mapstructure:"default"`
}

type DunningConfig struct {
	Schedule               string `mapstructure:"schedule"`
	ReminderEnabled        bool   `mapstructure:"reminderEnabled"`
	ReminderIntervals      []int  `mapstructure:"reminderIntervals"`
	MaxReminders           int    `mapstructure:"maxReminders"`
	SuspensionEnabled      bool   `mapstructure:"suspensionEnabled"`
	SuspensionDaysAfterDue int    `mapstructure:"suspensionDaysAfterDue"`
	BatchSize              int    `mapstructure:"batchSize"`
}

type VoucherConfig struct {
	CodeLength     int `mapstructure:"codeLength"`
	RateLimitRate  int `mapstructure:"rateLimitPerMinute"`
	RateLimitBurst int `mapstructure:"rateLimitBurst"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Currency:         "EUR",
		DefaultTaxRate:   19,
		PaymentTermsDays: 14,
		TrialDays:        14,
		YearlyDiscount:   10,
		NumberPrefixes: NumberPrefixes{
			Club:    "CLUB",
			Tenant:  "TEN",
			Default: "INV",
		},
		Dunning: DunningConfig{
			Schedule:               "0 9 * * *",
			ReminderEnabled:        true,
			ReminderIntervals:      []int{7, 14, 21},
			MaxReminders:           3,
			SuspensionEnabled:      true,
			SuspensionDaysAfterDue: 30,
			BatchSize:              100,
		},
		Voucher: VoucherConfig{
			CodeLength:     8,
			RateLimitRate:  20,
			RateLimitBurst: 10,
		},
		Issuer: IssuerConfig{
			Name:  "Basketmanager",
			Email: "billing@basketmanager.de",
		},
	}
}

// ReminderInterval returns the days overdue required before reminder number
// sent+1. It reports false when no interval is configured for that level.
func (c DunningConfig) ReminderInterval(sent int) (int, bool) {
	if sent < 0 || sent >= len(c.ReminderIntervals) {
		return 0, false
	}
	days := c.ReminderIntervals[sent]
	if days <= 0 {
		return 0, false
	}
	return days, true
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
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("billing.config")

	v := viper.New()
	v.SetConfigName("billing")
	v.SetConfigType("yml")
	if appCfg.BillingConfigDir != "" {
		v.AddConfigPath(appCfg.BillingConfigDir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("BASKETMANAGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setBillingDefaults(v, DefaultBillingConfig())

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileFound {
		log.Info("billing.yml not found, using defaults")
		return holder, nil
	}

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

func setBillingDefaults(v *viper.Viper, d BillingConfig) {
	v.SetDefault("billing.currency", d.Currency)
	v.SetDefault("billing.defaultTaxRate", d.DefaultTaxRate)
	v.SetDefault("billing.paymentTermsDays", d.PaymentTermsDays)
	v.SetDefault("billing.trialDays", d.TrialDays)
	v.SetDefault("billing.yearlyDiscountPercent", d.YearlyDiscount)
	v.SetDefault("billing.numberPrefixes.club", d.NumberPrefixes.Club)
	v.SetDefault("billing.numberPrefixes.tenant", d.NumberPrefixes.Tenant)
	v.SetDefault("billing.numberPrefixes.default", d.NumberPrefixes.Default)
	v.SetDefault("billing.dunning.schedule", d.Dunning.Schedule)
	v.SetDefault("billing.dunning.reminderEnabled", d.Dunning.ReminderEnabled)
	v.SetDefault("billing.dunning.reminderIntervals", d.Dunning.ReminderIntervals)
	v.SetDefault("billing.dunning.maxReminders", d.Dunning.MaxReminders)
	v.SetDefault("billing.dunning.suspensionEnabled", d.Dunning.SuspensionEnabled)
	v.SetDefault("billing.dunning.suspensionDaysAfterDue", d.Dunning.SuspensionDaysAfterDue)
	v.SetDefault("billing.dunning.batchSize", d.Dunning.BatchSize)
	v.SetDefault("billing.voucher.codeLength", d.Voucher.CodeLength)
	v.SetDefault("billing.voucher.rateLimitPerMinute", d.Voucher.RateLimitRate)
	v.SetDefault("billing.voucher.rateLimitBurst", d.Voucher.RateLimitBurst)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	// Unmarshal walks every leaf key so file values merge with defaults.
	var wrapper struct {
		Billing BillingConfig `mapstructure:"billing"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return BillingConfig{}, err
	}
	if err := ValidateBillingConfig(wrapper.Billing); err != nil {
		return BillingConfig{}, err
	}
	return wrapper.Billing, nil
}

func ValidateBillingConfig(cfg BillingConfig) error {
	var errs []error
	if strings.TrimSpace(cfg.Currency) == "" {
		errs = append(errs, errors.New("billing.currency cannot be empty"))
	}
	if cfg.DefaultTaxRate < 0 || cfg.DefaultTaxRate > 100 {
		errs = append(errs, fmt.Errorf("billing.defaultTaxRate out of range: %v", cfg.DefaultTaxRate))
	}
	if cfg.PaymentTermsDays <= 0 {
		errs = append(errs, errors.New("billing.paymentTermsDays must be positive"))
	}
	if cfg.Dunning.MaxReminders < 0 {
		errs = append(errs, errors.New("billing.dunning.maxReminders cannot be negative"))
	}
	if cfg.Dunning.ReminderEnabled && len(cfg.Dunning.ReminderIntervals) == 0 {
		errs = append(errs, errors.New("billing.dunning.reminderIntervals cannot be empty"))
	}
	for _, days := range cfg.Dunning.ReminderIntervals {
		if days <= 0 {
			errs = append(errs, fmt.Errorf("billing.dunning.reminderIntervals must be positive, got %d", days))
			break
		}
	}
	if cfg.Dunning.SuspensionEnabled && cfg.Dunning.SuspensionDaysAfterDue <= 0 {
		errs = append(errs, errors.New("billing.dunning.suspensionDaysAfterDue must be positive"))
	}
	if cfg.Voucher.CodeLength < 4 {
		errs = append(errs, errors.New("billing.voucher.codeLength must be at least 4"))
	}
	return errors.Join(errs...)
}
