package enrolment

import "go.uber.org/fx"

// Module exposes the enrolment engine via Fx.
var Module = fx.Options(
	fx.Provide(NewEngine),
)
