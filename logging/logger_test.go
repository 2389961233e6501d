package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestStdLogger_WithFields 测试字段继承
func TestStdLogger_WithFields(t *testing.T) {
	base := NewStdLogger("test")
	derived := base.WithFields(String("component", "workflow"))

	std, ok := derived.(*StdLogger)
	assert.True(t, ok)
	assert.Len(t, std.fields, 1)

	// 再派生一层，字段应累积
	derived2 := derived.WithFields(Int("n", 1))
	std2 := derived2.(*StdLogger)
	assert.Len(t, std2.fields, 2)

	// 原 Logger 不受影响
	assert.Empty(t, base.fields)
}

// TestStdLogger_Format 测试字段格式化
func TestStdLogger_Format(t *testing.T) {
	l := NewStdLogger("")
	out := l.format("msg", String("k", "v"), Int("n", 3))
	assert.Equal(t, "msg k=v n=3", out)

	l2 := NewStdLogger("svc")
	out2 := l2.format("msg")
	assert.Equal(t, "svc msg", out2)
}

// TestStdLogger_LevelFilter 测试级别过滤不会 panic（输出走标准库，无法直接断言内容）
func TestStdLogger_LevelFilter(t *testing.T) {
	l := NewStdLogger("test").WithLevel(ErrorLevel)
	ctx := context.Background()
	l.Debug(ctx, "dropped")
	l.Info(ctx, "dropped")
	l.Warn(ctx, "dropped")
	l.Error(ctx, "kept")
}

// TestGlobalLogger 测试全局 Logger 设置与恢复
func TestGlobalLogger(t *testing.T) {
	old := GetLogger()
	defer SetLogger(old)

	noop := NewNoopLogger()
	SetLogger(noop)
	assert.Equal(t, Logger(noop), GetLogger())
}

// TestFieldConstructors 测试字段构造函数
func TestFieldConstructors(t *testing.T) {
	assert.Equal(t, Field{Key: "s", Value: "v"}, String("s", "v"))
	assert.Equal(t, Field{Key: "b", Value: true}, Bool("b", true))
	assert.Equal(t, "error", Error(assert.AnError).Key)
}
