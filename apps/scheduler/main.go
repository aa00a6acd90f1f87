package main

import (
	"github.com/smallbiznis/purchasesync/internal/cli"
	"github.com/smallbiznis/purchasesync/internal/scheduler"
	"github.com/smallbiznis/purchasesync/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Sync engine: config, observability, stores and pipeline stages
		cli.Modules(),

		// Long-running surface
		scheduler.Module,
		server.Module,
	)
	app.Run()
}
