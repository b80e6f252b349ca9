// Package log 定义 SDK 的日志接口。
//
// SDK 不绑定具体日志实现：调用方可注入任意实现了 Logger 的日志器，
// 未注入时使用 Noop（丢弃所有输出）。
package log

import "context"

// Kv 结构化日志的键值对。
type Kv = map[string]interface{}

// Logger 是 SDK 内部使用的日志接口。
type Logger interface {
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})

	// WithValues 返回附加了键值对的新 Logger。
	WithValues(values Kv) Logger

	// WithCtxValues 返回附加了 ctx 中已挂载键值对的新 Logger。
	WithCtxValues(ctx context.Context) Logger

	// SetValuesOnCtx 将键值对挂载到 ctx，供后续 WithCtxValues 取出。
	SetValuesOnCtx(parent context.Context, values Kv) context.Context
}

// Noop 丢弃所有日志输出。
var Noop Logger = noop{}

type noop struct{}

func (noop) Infof(string, ...interface{})    {}
func (noop) Warningf(string, ...interface{}) {}
func (noop) Errorf(string, ...interface{})   {}
func (noop) Debugf(string, ...interface{})   {}
func (noop) WithValues(Kv) Logger            { return Noop }
func (noop) WithCtxValues(context.Context) Logger {
	return Noop
}
func (noop) SetValuesOnCtx(parent context.Context, _ Kv) context.Context {
	return parent
}

type contextKey string

const contextLogValuesKey contextKey = "log-values"

// CtxValues 取出 ctx 上挂载的日志键值对。
func CtxValues(ctx context.Context) Kv {
	values, ok := ctx.Value(contextLogValuesKey).(Kv)
	if !ok {
		return Kv{}
	}
	return values
}

// CtxWithValues 将键值对合并挂载到 ctx。
func CtxWithValues(parent context.Context, values Kv) context.Context {
	merged := Kv{}
	for k, v := range CtxValues(parent) {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	return context.WithValue(parent, contextLogValuesKey, merged)
}
