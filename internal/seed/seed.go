package seed

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
	pkgdb "github.com/vidra-ai/vidra/pkg/db"
	"gorm.io/gorm"
)

//go:embed models.yaml
var modelsYAML []byte

type seedParameter struct {
	Name   string `mapstructure:"name" json:"name"`
	Type   string `mapstructure:"type" json:"type"`
	Format string `mapstructure:"format" json:"format,omitempty"`
}

type seedModel struct {
	ID               string          `mapstructure:"id"`
	ReplicateName    string          `mapstructure:"replicate_name"`
	DisplayName      string          `mapstructure:"display_name"`
	DurationOptions  []int           `mapstructure:"duration_options"`
	AspectRatios     []string        `mapstructure:"aspect_ratios"`
	CreditsPerSecond int64           `mapstructure:"credits_per_second"`
	SupportsAudio    bool            `mapstructure:"supports_audio"`
	SchemaParameters []seedParameter `mapstructure:"schema_parameters"`
}

// EnsureModels seeds the model catalog on startup. Existing rows are left
// untouched so operator edits survive restarts.
func EnsureModels(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(modelsYAML)); err != nil {
		return fmt.Errorf("read model seed: %w", err)
	}

	var models []seedModel
	if err := v.UnmarshalKey("models", &models); err != nil {
		return fmt.Errorf("decode model seed: %w", err)
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range models {
			if m.ID == "" || m.ReplicateName == "" {
				return fmt.Errorf("seed model missing id or replicate_name: %+v", m)
			}

			durations, err := json.Marshal(m.DurationOptions)
			if err != nil {
				return err
			}
			ratios, err := json.Marshal(m.AspectRatios)
			if err != nil {
				return err
			}
			params, err := json.Marshal(m.SchemaParameters)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			res := tx.Exec(
				`INSERT INTO models (
					id, replicate_name, display_name, duration_options,
					schema_parameters, aspect_ratios, credits_per_second,
					supports_audio, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO NOTHING`,
				m.ID,
				m.ReplicateName,
				m.DisplayName,
				string(durations),
				string(params),
				string(ratios),
				m.CreditsPerSecond,
				m.SupportsAudio,
				now,
				now,
			)
			// Another instance may have seeded first; ON CONFLICT covers the
			// usual case, the error check covers dialects that race anyway.
			if res.Error != nil && !pkgdb.IsDuplicateKeyErr(res.Error) {
				return res.Error
			}
		}
		return nil
	})
}
