package observability

import (
	"github.com/danmuck/qlang/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs an app-scoped global logger on top of the active
// logging profile.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	ctx := zerolog.New(logging.Writer()).With().Str("app", app)
	if logging.Active().Timestamp {
		ctx = ctx.Timestamp()
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger
}
