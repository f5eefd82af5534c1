// Package logging builds the zap.Logger used throughout the worker: a
// colorized console encoder when stderr is a terminal, falling back to
// plain JSON under supervisors/containers, plus an optional rotating file
// sink.
package logging

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/chainindex/txprocessor/internal/config"
)

// FileSinkConfig controls the optional rotating file sink. Zero or negative
// limits fall back to 100 MB per file, 7 backups and 14 days.
type FileSinkConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New builds a zap.Logger from the logs section of settings.json. level
// must parse via zapcore.Level.UnmarshalText ("debug", "info", "warn",
// "error"); DebugMode forces debug level regardless of the configured
// string, matching the original's debug_mode escape hatch.
func New(cfg config.LogsConfig, fileSink FileSinkConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, errors.Wrapf(err, "parse log level %q", cfg.Level)
		}
	}
	if cfg.DebugMode {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if isatty.IsTerminal(os.Stderr.Fd()) {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}

	if cfg.WriteToFiles && fileSink.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   fileSink.Path,
			MaxSize:    orDefault(fileSink.MaxSizeMB, 100),
			MaxBackups: orDefault(fileSink.MaxBackups, 7),
			MaxAge:     orDefault(fileSink.MaxAgeDays, 14),
			Compress:   fileSink.Compress,
		}
		fileEncoder := zapcore.NewJSONEncoder(encCfg)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
