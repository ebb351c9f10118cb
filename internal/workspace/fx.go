package workspace

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/workspacebilling/internal/workspace/repository"
)

var Module = fx.Module("workspace",
	fx.Provide(repository.Provide),
)
