// Package log builds the process-wide zap.Logger: one encoder built from
// LogCfg, writing both to the console and to a log file opened for
// append (the file is not rotated). A package-level LogCfg is mutated in
// place by ChangeLogLevel/ChangeColorEncoding rather than rebuilt from
// scratch each time.
package log

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCfg is the mutable zap build configuration every helper in this
// package edits in place before calling Build.
var LogCfg = defaultConfig()

// consoleWriter is where the console-encoded half of the logger writes;
// tests redirect it to a buffer via SetConsoleWriter.
var consoleWriter io.Writer = os.Stdout

// Indirections over the os package so file-creation failures can be
// exercised by tests without touching the real filesystem.
var (
	openLogFile = os.OpenFile
	chmodFile   = os.Chmod
)

const logFileName = "oxidedb.log"

func init() {
	consoleEncoder := func(cfg zapcore.EncoderConfig) (zapcore.Encoder, error) {
		return zapcore.NewConsoleEncoder(cfg), nil
	}
	_ = zap.RegisterEncoder("colorConsole", consoleEncoder)
	_ = zap.RegisterEncoder("nonColorConsole", consoleEncoder)
}

func defaultConfig() zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = customTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return cfg
}

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02T15:04:05.000Z0700"))
}

// SetConsoleWriter redirects the console half of the logger, for tests
// that want to assert on emitted log lines.
func SetConsoleWriter(w io.Writer) { consoleWriter = w }

// New opens the log file, builds the encoder from LogCfg, and returns
// a logger writing to the file and to consoleWriter, plus the open file
// handle so the caller can close it on shutdown.
func New() (*zap.Logger, *os.File, error) {
	f, err := openLogFile(logFileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	if err := chmodFile(logFileName, 0777); err != nil {
		return nil, nil, fmt.Errorf("failed to set the log file permission to 777: %w", err)
	}
	logger, err := build(LogCfg, f)
	if err != nil {
		return nil, nil, err
	}
	return logger, f, nil
}

func build(cfg zap.Config, file *os.File) (*zap.Logger, error) {
	encoder := zapcore.NewConsoleEncoder(cfg.EncoderConfig)
	if cfg.Encoding == "json" {
		encoder = zapcore.NewJSONEncoder(cfg.EncoderConfig)
	}
	level := cfg.Level
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(consoleWriter), level)}
	if file != nil {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// ChangeLogLevel rebuilds the logger at the given level, disabling
// stack traces (operators turning on Debug want readable output, not a
// stack trace on every line).
func ChangeLogLevel(level zapcore.Level) (*zap.Logger, error) {
	LogCfg.Level = zap.NewAtomicLevelAt(level)
	LogCfg.DisableStacktrace = true
	logger, err := LogCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build config for logger: %w", err)
	}
	return logger, nil
}

// AddMode tags every subsequent log line with a "mode" field (e.g.
// "serve", "shadow-compare") so one log stream distinguishes
// concurrently running subsystems.
func AddMode(mode string) (*zap.Logger, error) {
	logger, err := LogCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to add mode to logger: %w", err)
	}
	return logger.With(zap.String("mode", mode)), nil
}

// ChangeColorEncoding toggles between ANSI-colored and plain console
// encoding, for environments (CI logs, piped output) where color codes
// are noise.
func ChangeColorEncoding() (*zap.Logger, error) {
	if LogCfg.Encoding == "colorConsole" || LogCfg.EncoderConfig.EncodeLevel == nil {
		LogCfg.Encoding = "nonColorConsole"
		LogCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		LogCfg.Encoding = "colorConsole"
		LogCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logger, err := LogCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build config for logger: %w", err)
	}
	return logger, nil
}
