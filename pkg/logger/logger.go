package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// Logger 进程级日志实例，由 Init 或首次 GetLogger 初始化
	Logger *logrus.Logger
	once   sync.Once
)

// Config 日志配置
type Config struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // text, json
}

// New 按配置创建独立的日志器，输出到 out（nil 时为 stdout）
func New(config Config, out io.Writer) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if config.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FullTimestamp:   true,
		})
	}

	if out == nil {
		out = os.Stdout
	}
	l.SetOutput(out)
	return l
}

// Init 初始化全局日志器
func Init(config Config) {
	Logger = New(config, nil)
}

// ConfigFromEnv 从 LOG_LEVEL / LOG_FORMAT / DEBUG 读取日志配置
func ConfigFromEnv() Config {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		if os.Getenv("DEBUG") == "1" {
			level = "debug"
		} else {
			level = "info"
		}
	}

	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = "text"
	}
	return Config{Level: level, Format: format}
}

// GetLogger 获取全局日志器，未初始化时按环境变量初始化
func GetLogger() *logrus.Logger {
	once.Do(func() {
		if Logger == nil {
			Init(ConfigFromEnv())
		}
	})
	return Logger
}

// WithComponent 创建带组件名的日志器
func WithComponent(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}

// Discard 返回丢弃所有输出的日志条目，测试中使用
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
