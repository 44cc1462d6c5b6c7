package job

import (
	"github.com/vidra-ai/vidra/internal/job/repository"
	"github.com/vidra-ai/vidra/internal/job/service"
	"go.uber.org/fx"
)

var Module = fx.Module("job.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
