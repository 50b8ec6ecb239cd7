package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var applicationName = "triage"

// Levels accepted by InitLogger.
var levels = map[string]zerolog.Level{
	"DEBUG":    zerolog.DebugLevel,
	"INFO":     zerolog.InfoLevel,
	"WARN":     zerolog.WarnLevel,
	"ERROR":    zerolog.ErrorLevel,
	"FATAL":    zerolog.FatalLevel,
	"PANIC":    zerolog.PanicLevel,
	"DISABLED": zerolog.Disabled,
}

// ValidLevel reports whether level is a known log level name.
func ValidLevel(level string) bool {
	_, ok := levels[strings.ToUpper(level)]
	return ok
}

func InitLogger(level, appName string) {
	lvl, ok := levels[strings.ToUpper(level)]
	if !ok {
		Panic(fmt.Sprintf("Incorrect log level %s", level), nil)
	}
	if appName != "" {
		applicationName = appName
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Str("app", applicationName).Logger()
	Info("Logger initialized!")
}

func Info(message string) {
	log.Info().Msg(message)
}

func Warn(message string) {
	log.Warn().Msg(message)
}

func Error(message string, err error) {
	log.Error().Err(err).Msg(message)
}

func Panic(message string, err error) {
	log.Panic().Err(err).Msg(message)
}
