// Package logging 提供统一的结构化日志接口。
// 编排核心与基础设施层都通过该接口输出日志，避免直接依赖具体日志库。
package logging

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Level 日志级别
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger 日志接口
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields 派生带固定字段的 Logger，常用于组件级日志
	WithFields(fields ...Field) Logger
}

// Field 结构化日志字段
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field        { return Field{Key: key, Value: value} }
func Int(key string, value int) Field       { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field   { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field     { return Field{Key: key, Value: value} }
func Any(key string, value any) Field       { return Field{Key: key, Value: value} }
func Error(err error) Field                 { return Field{Key: "error", Value: err} }

// Duration 以 time.Duration 作为字段值
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// StdLogger 基于标准库 log 的默认实现，支持最低级别过滤。
type StdLogger struct {
	prefix string
	level  Level
	fields []Field
}

// NewStdLogger 创建标准库 Logger，默认输出 Info 及以上级别。
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{prefix: prefix, level: InfoLevel}
}

// WithLevel 设置最低输出级别，返回自身便于链式调用。
func (l *StdLogger) WithLevel(level Level) *StdLogger {
	l.level = level
	return l
}

func (l *StdLogger) format(msg string, fields ...Field) string {
	out := msg
	if l.prefix != "" {
		out = l.prefix + " " + msg
	}
	all := append(l.fields, fields...)
	for _, f := range all {
		out += " " + f.Key + "=" + formatValue(f.Value)
	}
	return out
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprint(val)
	}
}

func (l *StdLogger) emit(level Level, tag, msg string, fields ...Field) {
	if level < l.level {
		return
	}
	log.Println(tag, l.format(msg, fields...))
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.emit(DebugLevel, "[DEBUG]", msg, fields...)
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.emit(InfoLevel, "[INFO]", msg, fields...)
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.emit(WarnLevel, "[WARN]", msg, fields...)
}

func (l *StdLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.emit(ErrorLevel, "[ERROR]", msg, fields...)
}

func (l *StdLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &StdLogger{prefix: l.prefix, level: l.level, fields: merged}
}

// NoopLogger 空实现，测试中用于静默日志。
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) Logger                      { return l }

// 全局 Logger，缺省为标准库实现
var globalLogger Logger = NewStdLogger("")

// SetLogger 设置全局 Logger
func SetLogger(logger Logger) {
	globalLogger = logger
}

// GetLogger 获取全局 Logger
func GetLogger() Logger {
	return globalLogger
}
