package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(provideBillingConfig),
)

func provideBillingConfig(cfg Config) (*BillingConfigHolder, error) {
	return NewBillingConfigHolder(cfg.BillingConfigPath)
}
