package migration

import (
	"errors"

	accountdomain "github.com/vidra-ai/vidra/internal/account/domain"
	catalogdomain "github.com/vidra-ai/vidra/internal/catalog/domain"
	generationdomain "github.com/vidra-ai/vidra/internal/generation/domain"
	jobdomain "github.com/vidra-ai/vidra/internal/job/domain"
	"gorm.io/gorm"
)

// Bootstrap creates the schema from the domain models. sqlite deployments
// (development) use this instead of the versioned SQL migrations, which
// are postgres-only.
func Bootstrap(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("bootstrap database handle is required")
	}
	return conn.AutoMigrate(
		&accountdomain.User{},
		&accountdomain.LedgerEntry{},
		&accountdomain.Purchase{},
		&jobdomain.Job{},
		&jobdomain.PredictionRef{},
		&catalogdomain.Model{},
		&generationdomain.WebhookEvent{},
	)
}
