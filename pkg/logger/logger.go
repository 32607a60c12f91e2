package logx

import (
	"io"
	"os"

	"github.com/Chative-rag-assistant/server/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var DefaultLoggerOpts = &LoggerOpts{
	Environment: core.Development,
}

type LoggerOpts struct {
	Environment core.Environment
	// FilePath enables an additional rotating JSON log file when set.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
}

func safe(opts ...LoggerOpts) *LoggerOpts {
	if len(opts) == 0 {
		return DefaultLoggerOpts
	}
	return &opts[0]
}

func Init(opts ...LoggerOpts) {
	o := safe(opts...)

	var console io.Writer = os.Stderr
	level := zerolog.InfoLevel
	if !o.Environment.IsProduction() {
		console = zerolog.NewConsoleWriter()
		level = zerolog.DebugLevel
	}

	out := console
	if o.FilePath != "" {
		out = zerolog.MultiLevelWriter(console, fileWriter(o))
	}

	ctx := zerolog.New(out).With().Timestamp()
	if !o.Environment.IsProduction() {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger().Level(level)
}

func fileWriter(o *LoggerOpts) io.Writer {
	size := o.MaxSizeMB
	if size <= 0 {
		size = 50
	}
	backups := o.MaxBackups
	if backups <= 0 {
		backups = 3
	}
	return &lumberjack.Logger{
		Filename:   o.FilePath,
		MaxSize:    size,
		MaxBackups: backups,
		Compress:   true,
	}
}

// With returns a child logger carrying the given session id.
func With(sessionID string) zerolog.Logger {
	return log.Logger.With().Str("session_id", sessionID).Logger()
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Panic() *zerolog.Event {
	return log.Panic()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}
