package pdfmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel 日志级别
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelNone
)

// ParseLogLevel 解析配置文件中的日志级别名称
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "info":
		return LogLevelInfo, nil
	case "", "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "none", "off":
		return LogLevelNone, nil
	}
	return LogLevelWarn, fmt.Errorf("unknown log level %q", s)
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// nopHandler 丢弃所有日志记录，库默认静默
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Logger 结构化日志记录器
// 级别过滤在这里完成，输出格式交给 slog.Handler
type Logger struct {
	mu      sync.RWMutex
	level   LogLevel
	enabled bool
	sink    atomic.Pointer[slog.Logger]
}

var (
	defaultLogger *Logger
	loggerOnce    sync.Once
)

// GetLogger 获取默认日志记录器（单例）
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		defaultLogger = &Logger{level: LogLevelWarn, enabled: true}
		defaultLogger.sink.Store(slog.New(nopHandler{}))
	})
	return defaultLogger
}

// NewLogger 创建写入 output 的文本日志记录器
func NewLogger(level LogLevel, output io.Writer) *Logger {
	l := &Logger{level: level, enabled: true}
	l.sink.Store(slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})).With("component", "pdfmark"))
	return l
}

// SetSink 替换底层的 slog.Logger，nil 表示静默
func (l *Logger) SetSink(s *slog.Logger) {
	if s == nil {
		s = slog.New(nopHandler{})
	}
	l.sink.Store(s)
}

// SetLevel 设置日志级别
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetEnabled 启用或禁用日志
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// Debug 记录调试信息，args 为 slog 风格的键值对
func (l *Logger) Debug(msg string, args ...any) {
	l.log(LogLevelDebug, msg, args...)
}

// Info 记录信息
func (l *Logger) Info(msg string, args ...any) {
	l.log(LogLevelInfo, msg, args...)
}

// Warn 记录警告
func (l *Logger) Warn(msg string, args ...any) {
	l.log(LogLevelWarn, msg, args...)
}

// Error 记录错误
func (l *Logger) Error(msg string, args ...any) {
	l.log(LogLevelError, msg, args...)
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	l.mu.RLock()
	skip := !l.enabled || level < l.level || level >= LogLevelNone
	l.mu.RUnlock()
	if skip {
		return
	}
	l.sink.Load().Log(context.Background(), level.slogLevel(), msg, args...)
}

// 全局便捷函数
func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, args...)
}

func LogError(msg string, args ...any) {
	GetLogger().Error(msg, args...)
}

// SetLogger 让全局日志写入 s；nil 恢复静默
func SetLogger(s *slog.Logger) {
	GetLogger().SetSink(s)
}

// SetLogLevel 设置全局日志级别
func SetLogLevel(level LogLevel) {
	GetLogger().SetLevel(level)
}

// EnableLogging 启用或禁用全局日志
func EnableLogging(enabled bool) {
	GetLogger().SetEnabled(enabled)
}
