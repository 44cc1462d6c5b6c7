package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/vidra-ai/vidra/internal/config"
	"github.com/vidra-ai/vidra/internal/migration"
	"github.com/vidra-ai/vidra/internal/observability"
	"github.com/vidra-ai/vidra/internal/server"
	"github.com/vidra-ai/vidra/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		// HTTP surface plus every domain it serves
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
