package tasks

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ asynq.Logger = (*Logger)(nil)

// Logger adapts zerolog to asynq.Logger so queue logs share the service format.
type Logger struct {
	l zerolog.Logger
}

func NewLogger() *Logger {
	return &Logger{l: log.With().Str("component", "asynq").Logger()}
}

func (l *Logger) Debug(args ...any) { l.l.Debug().Msg(fmt.Sprint(args...)) }
func (l *Logger) Info(args ...any)  { l.l.Info().Msg(fmt.Sprint(args...)) }
func (l *Logger) Warn(args ...any)  { l.l.Warn().Msg(fmt.Sprint(args...)) }
func (l *Logger) Error(args ...any) { l.l.Error().Msg(fmt.Sprint(args...)) }
func (l *Logger) Fatal(args ...any) { l.l.Fatal().Msg(fmt.Sprint(args...)) }
