package billingwebhook

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/mapper"
	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/repository"
	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/service"
	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/verifier"
	"github.com/smallbiznis/workspacebilling/internal/config"
)

var Module = fx.Module("billingwebhook",
	fx.Provide(verifier.NewPolicyFromConfig),
	fx.Provide(provideMapper),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

func provideMapper(plans *config.PlanCatalogHolder) *mapper.Mapper {
	return mapper.New(plans)
}
