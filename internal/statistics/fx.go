package statistics

import (
	"github.com/smallbiznis/bursar/internal/statistics/repository"
	"github.com/smallbiznis/bursar/internal/statistics/service"
	"go.uber.org/fx"
)

var Module = fx.Module("statistics.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
