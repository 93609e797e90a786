// Package logging builds the zap logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sandeepkv93/pickupd/internal/config"
)

// New returns a sugared logger writing to w, or to cfg.File when w is nil
// and a file is configured. The TUI always logs to a file so the screen is
// not corrupted.
func New(cfg config.LogConfig, w io.Writer) (*zap.SugaredLogger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	closer := func() error { return nil }
	var sink zapcore.WriteSyncer
	switch {
	case w != nil:
		sink = zapcore.AddSync(w)
	case cfg.File != "":
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		sink = zapcore.AddSync(f)
		closer = f.Close
	default:
		sink = zapcore.Lock(os.Stderr)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	logger := zap.New(zapcore.NewCore(enc, sink, level), zap.AddCaller())
	return logger.Sugar(), func() error {
		_ = logger.Sync()
		return closer()
	}, nil
}
