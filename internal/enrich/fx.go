package enrich

import "go.uber.org/fx"

var Module = fx.Module("enrich",
	fx.Provide(New),
)
