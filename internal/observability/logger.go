package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerOptions shapes the console output.
type LoggerOptions struct {
	NoColor   bool
	Timestamp bool
}

// InitLogger installs a console logger tagged with app as the global logger.
func InitLogger(app string, opts LoggerOptions) zerolog.Logger {
	return NewLogger(os.Stderr, app, opts)
}

func NewLogger(out io.Writer, app string, opts LoggerOptions) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    opts.NoColor,
	}
	ctx := zerolog.New(output).With()
	if opts.Timestamp {
		ctx = ctx.Timestamp()
	}
	if app != "" {
		ctx = ctx.Str("app", app)
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger
}
