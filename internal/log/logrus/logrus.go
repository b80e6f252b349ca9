// Package logrus 提供基于 sirupsen/logrus 的 Logger 实现。
package logrus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/agentbox-cloud/agentbox-go/internal/log"
)

type logger struct {
	*logrus.Entry
}

// NewLogrus 将 logrus.Entry 包装为 SDK 的 log.Logger。
func NewLogrus(entry *logrus.Entry) log.Logger {
	return logger{Entry: entry}
}

func (l logger) WithValues(values log.Kv) log.Logger {
	return logger{Entry: l.Entry.WithFields(logrus.Fields(values))}
}

func (l logger) WithCtxValues(ctx context.Context) log.Logger {
	return l.WithValues(log.CtxValues(ctx))
}

func (l logger) SetValuesOnCtx(parent context.Context, values log.Kv) context.Context {
	return log.CtxWithValues(parent, values)
}
