package providers

import (
	"github.com/vidra-ai/vidra/internal/providers/notifier"
	"github.com/vidra-ai/vidra/internal/providers/playbilling"
	"github.com/vidra-ai/vidra/internal/providers/replicate"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	replicate.Module,
	notifier.Module,
	playbilling.Module,
)
