package replicate

import (
	"github.com/vidra-ai/vidra/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.replicate",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Gateway {
	if cfg.Replicate.APIToken == "" {
		log.Warn("replicate api token not configured, using noop gateway")
		return &NoOpGateway{}
	}
	return NewClient(Config{
		APIToken:   cfg.Replicate.APIToken,
		BaseURL:    cfg.Replicate.BaseURL,
		WebhookURL: cfg.Replicate.WebhookURL,
		Timeout:    cfg.Replicate.Timeout,
	}, log)
}
