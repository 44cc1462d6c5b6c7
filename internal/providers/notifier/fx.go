package notifier

import (
	accountdomain "github.com/vidra-ai/vidra/internal/account/domain"
	"github.com/vidra-ai/vidra/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.notifier",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, accounts accountdomain.Service, log *zap.Logger) Notifier {
	if cfg.Notifier.FCMEndpoint == "" || cfg.Notifier.FCMAuthKey == "" {
		return &NoOpNotifier{}
	}
	return NewFCM(Config{
		Endpoint: cfg.Notifier.FCMEndpoint,
		AuthKey:  cfg.Notifier.FCMAuthKey,
	}, accounts, log)
}
