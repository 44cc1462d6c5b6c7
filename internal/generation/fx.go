package generation

import (
	"github.com/vidra-ai/vidra/internal/generation/repository"
	"github.com/vidra-ai/vidra/internal/generation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.NewReconciler),
)
