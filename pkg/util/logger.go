package util

import (
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.Logger

func init() {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.OutputPaths = []string{"stdout"}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var err error
	Logger, err = config.Build()
	if err != nil {
		panic(err)
	}
}

// LogConfig is the user facing logging configuration.
type LogConfig struct {
	Level    string
	Format   string
	Filename string
}

// InitLogger replaces Logger with one built from cfg. An empty Filename keeps
// writing to stdout.
func InitLogger(cfg LogConfig) error {
	logCfg := &log.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
		File:   log.FileLogConfig{Filename: cfg.Filename},
	}
	if logCfg.Level == "" {
		logCfg.Level = "info"
	}
	if logCfg.Format == "" {
		logCfg.Format = "text"
	}
	logger, props, err := log.InitLogger(logCfg)
	if err != nil {
		return errors.Annotatef(err, "init logger with level %s", logCfg.Level)
	}
	log.ReplaceGlobals(logger, props)
	Logger = logger
	return nil
}
