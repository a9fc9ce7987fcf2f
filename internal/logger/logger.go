// Package logger wires up structured logging via zap, with optional
// rotating file output via lumberjack, adapted from the teacher's own
// logger package. Verbosity maps onto zap levels: silent suppresses
// everything below error, transient and normal both log structured step
// lines at info level (this module carries no terminal progress-bar
// library, so "transient" does not repaint a line in place).
package logger

import (
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kraina-ai/quackosm-go/internal/config"
)

var (
	log  *zap.Logger
	once sync.Once
)

// Init initializes the global logger with console output only.
func Init(v config.Verbosity) {
	once.Do(func() {
		initLogger(v, "")
	})
}

// InitWithFile initializes the global logger with both console and file output.
func InitWithFile(v config.Verbosity, logFile string) {
	once.Do(func() {
		initLogger(v, logFile)
	})
}

func levelFor(v config.Verbosity) zapcore.Level {
	switch v {
	case config.VerbositySilent:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func initLogger(v config.Verbosity, logFile string) {
	level := levelFor(v)
	encoderConfig := zap.NewProductionEncoderConfig()

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	if logFile != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    50, // MB
				MaxBackups: 5,
				MaxAge:     30, // days
			}),
			level,
		)
		cores = append(cores, fileCore)
	}

	log = zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Get returns the global logger, initializing it with normal verbosity if
// it hasn't been set up yet.
func Get() *zap.Logger {
	if log == nil {
		Init(config.VerbosityNormal)
	}
	return log
}

// Sync flushes any buffered log entries.
func Sync() {
	if log != nil {
		log.Sync()
	}
}
