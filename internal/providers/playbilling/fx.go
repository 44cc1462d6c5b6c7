package playbilling

import (
	"go.uber.org/fx"
)

var Module = fx.Module("providers.playbilling",
	fx.Provide(New),
)

func New() Provider {
	return &NoOpProvider{}
}
