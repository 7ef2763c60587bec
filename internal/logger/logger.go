package logger

import (
	"context"
	"fmt"
	"github.com/maxaizer/job-aggregator/internal/config"
	"github.com/maxaizer/job-aggregator/pkg/loki"
	log "github.com/sirupsen/logrus"
	"io"
	"os"
	"path/filepath"
)

const ErrorTypeField = "error_type"

const (
	ErrorTypeDb        = "db"
	ErrorTypeQueue     = "queue"
	ErrorTypeConnector = "connector"
	ErrorTypeScoring   = "scoring"
	ErrorTypeRedis     = "redis"
	ErrorTypeParse     = "parse"
)

var (
	logFile *os.File
	pusher  *loki.Pusher
)

func Setup(ctx context.Context, cfg config.LoggerConfig) error {

	if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	var err error
	logFile, err = os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(multiWriter)

	customFormatter := &log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000 -0700",
	}
	log.SetFormatter(customFormatter)
	log.SetLevel(level(cfg.LogLevel))
	addErrorsHook()

	if cfg.LokiEnabled() {
		log.SetReportCaller(true)
		pusher, err = addLokiHook(ctx, loki.Config{
			Url:          cfg.LokiURL,
			BatchMaxSize: cfg.LokiBatch,
			Labels:       map[string]string{"app": cfg.AppName},
			Username:     cfg.LokiUser,
			Password:     cfg.LokiPassword,
		}, log.InfoLevel)
		if err != nil {
			return fmt.Errorf("failed to enable loki logging: %w", err)
		}
	}
	return nil
}

func level(value config.LogLevel) log.Level {
	switch value {
	case config.LevelDebug:
		return log.DebugLevel
	case config.LevelWarning:
		return log.WarnLevel
	case config.LevelError:
		return log.ErrorLevel
	case config.LevelFatal:
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

func Cleanup() {
	if pusher != nil {
		pusher.Stop()
	}
	if logFile != nil {
		_ = logFile.Close()
	}
}
