package account

import (
	"github.com/vidra-ai/vidra/internal/account/repository"
	"github.com/vidra-ai/vidra/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
