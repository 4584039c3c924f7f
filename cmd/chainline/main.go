package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/spokeworks/chainline/internal/clock"
	"github.com/spokeworks/chainline/internal/config"
	"github.com/spokeworks/chainline/internal/observability"
	"github.com/spokeworks/chainline/internal/server"
	"github.com/spokeworks/chainline/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
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
