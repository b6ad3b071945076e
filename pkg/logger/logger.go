package logger

import (
	"io"
	"os"
	"path/filepath"

	"caisse/pkg/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger *logrus.Logger

// Initialize 按配置初始化全局日志
func Initialize(cfg *config.Config) error {
	l, err := New(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	Logger = l
	return nil
}

// New 创建日志实例：级别无法解析时为 info，配置了文件路径时同时写入轮转文件
func New(cfg config.LogConfig, console io.Writer) (*logrus.Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l.SetOutput(console)
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, err
		}
		rotate := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		l.SetOutput(io.MultiWriter(console, rotate))
	}
	return l, nil
}

// GetLogger 获取日志实例，未初始化时返回默认实例（测试和工具场景）
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return logrus.StandardLogger()
	}
	return Logger
}

// ForEntity 带经营主体与操作人字段的日志
func ForEntity(entityID, userID uint) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"entity_id": entityID,
		"user_id":   userID,
	})
}
