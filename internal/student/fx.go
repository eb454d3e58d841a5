package student

import (
	"github.com/smallbiznis/bursar/internal/student/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("student.repository",
	fx.Provide(repository.Provide),
)
