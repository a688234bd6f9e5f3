package logging

import (
	"io"
	"os"

	"github.com/nexus-trading/launchwatch/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the global zerolog logger for a service.
func Setup(general config.GeneralConfig, service string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = zerolog.New(Writer(general)).
		With().Timestamp().Str("service", service).
		Str("instance", general.InstanceID).Logger()
}

// Writer returns the log sink for the given settings: stdout (console-formatted
// for log_format "text"), duplicated into a rotated file when log_file is set.
func Writer(general config.GeneralConfig) io.Writer {
	var out io.Writer = os.Stdout
	if general.LogFormat == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	if general.LogFile == "" {
		return out
	}

	file := &lumberjack.Logger{
		Filename:   general.LogFile,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	return zerolog.MultiLevelWriter(out, file)
}
