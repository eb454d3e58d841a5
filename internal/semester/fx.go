package semester

import (
	"github.com/smallbiznis/bursar/internal/semester/repository"
	"github.com/smallbiznis/bursar/internal/semester/service"
	"go.uber.org/fx"
)

var Module = fx.Module("semester.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
