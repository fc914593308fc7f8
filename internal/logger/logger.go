package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// Options 日志配置
type Options struct {
	Level string // logrus level name, "info" when empty
	Dir   string // log directory, ~/.ptestbench/logs when empty
	File  string // file name inside Dir, ptestbench.log when empty
	// Console also writes entries to stderr
	Console bool
}

// Init 使用默认配置初始化日志系统
func Init() {
	Configure(Options{})
}

// Configure 初始化日志系统
// Failure to create the log file is not fatal: entries go to stderr instead.
func Configure(opts Options) *os.File {
	Logger = logrus.New()

	// 设置日志格式
	Logger.SetFormatter(&CustomFormatter{})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)

	logDir := opts.Dir
	if logDir == "" {
		logDir = getLogDir()
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		logrus.Errorf("cannot create log directory %s: %v", logDir, err)
		return nil
	}

	name := opts.File
	if name == "" {
		name = "ptestbench.log"
	}
	logFile := filepath.Join(logDir, name)
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logrus.Errorf("cannot open log file %s: %v", logFile, err)
		return nil
	}
	if opts.Console {
		Logger.SetOutput(io.MultiWriter(file, os.Stderr))
	} else {
		Logger.SetOutput(file)
	}
	return file
}

// getLogDir 获取日志目录
func getLogDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".ptestbench", "logs")
}

// get returns the configured logger, or the logrus standard logger before Init.
func get() *logrus.Logger {
	if Logger != nil {
		return Logger
	}
	return logrus.StandardLogger()
}

// WithPort 带端口字段的日志条目
func WithPort(port string) *logrus.Entry {
	return get().WithField("port", port)
}

// Info 信息日志
func Info(args ...interface{}) {
	get().Info(args...)
}

// Error 错误日志
func Error(args ...interface{}) {
	get().Error(args...)
}

// Debug 调试日志
func Debug(args ...interface{}) {
	get().Debug(args...)
}

// Warn 警告日志
func Warn(args ...interface{}) {
	get().Warn(args...)
}
