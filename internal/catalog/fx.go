package catalog

import (
	"github.com/vidra-ai/vidra/internal/catalog/repository"
	"github.com/vidra-ai/vidra/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
