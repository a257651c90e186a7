package requester

import (
	"go.uber.org/fx"
)

// Module provides the requester module dependencies
var Module = fx.Module("requester",
	fx.Provide(
		fx.Annotate(
			NewHTTPRequester,
			fx.As(fx.Self()),
			fx.As(new(RequestExecutor)),
		),
	),
)
