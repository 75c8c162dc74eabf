package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PeakSeason is a recurring, inclusive month-day window. Start may be after
// End, in which case the window wraps the year end (e.g. 12-22 .. 02-28).
type PeakSeason struct {
	Name  string `mapstructure:"name"`
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

type PricingConfig struct {
	Currency    string       `mapstructure:"currency"`
	PeakSeasons []PeakSeason `mapstructure:"peakSeasons"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Currency: "EUR",
		PeakSeasons: []PeakSeason{
			{Name: "summer", Start: "06-01", End: "09-15"},
			{Name: "winter", Start: "12-22", End: "02-28"},
		},
	}
}

type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

// NewStaticPricingConfigHolder returns a holder that never reloads.
func NewStaticPricingConfigHolder(cfg PricingConfig) *PricingConfigHolder {
	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPricingConfigHolder(appCfg Config, log *zap.Logger) (*PricingConfigHolder, error) {
	v := viper.New()

	if appCfg.PricingFile != "" {
		v.SetConfigFile(appCfg.PricingFile)
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/guesthouse")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("GUESTHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPricingConfig()
	v.SetDefault("pricing.currency", defaults.Currency)
	v.SetDefault("pricing.peakSeasons", defaults.PeakSeasons)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if err := ValidatePricingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPricingConfigHolder(cfg)

	if v.ConfigFileUsed() != "" {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PricingConfig
			if err := v.UnmarshalKey("pricing", &updated); err != nil {
				log.Warn("pricing config reload failed", zap.Error(err))
				return
			}
			if err := ValidatePricingConfig(updated); err != nil {
				log.Warn("invalid pricing config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("pricing config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *PricingConfigHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func ValidatePricingConfig(cfg PricingConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("pricing.currency cannot be empty")
	}
	for _, season := range cfg.PeakSeasons {
		if _, err := ParseMonthDay(season.Start); err != nil {
			return fmt.Errorf("pricing.peakSeasons %q start: %w", season.Name, err)
		}
		if _, err := ParseMonthDay(season.End); err != nil {
			return fmt.Errorf("pricing.peakSeasons %q end: %w", season.Name, err)
		}
	}
	return nil
}

// MonthDay is a calendar day without a year, encoded as month*100+day.
type MonthDay int

func ParseMonthDay(value string) (MonthDay, error) {
	t, err := time.Parse("01-02", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("expected MM-DD, got %q", value)
	}
	return MonthDay(int(t.Month())*100 + t.Day()), nil
}

func MonthDayOf(t time.Time) MonthDay {
	return MonthDay(int(t.Month())*100 + t.Day())
}
