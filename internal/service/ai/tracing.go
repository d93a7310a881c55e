package ai

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"go.uber.org/zap"
)

// newTraceHandler logs every chain component as it starts, ends or fails.
func newTraceHandler(logger *zap.Logger) callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, _ callbacks.CallbackInput) context.Context {
			logger.Info("chain component started", runInfoFields(info)...)
			return ctx
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, _ callbacks.CallbackOutput) context.Context {
			logger.Info("chain component finished", runInfoFields(info)...)
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			logger.Warn("chain component failed", append(runInfoFields(info), zap.Error(err))...)
			return ctx
		}).
		Build()
}

func runInfoFields(info *callbacks.RunInfo) []zap.Field {
	if info == nil {
		return nil
	}
	return []zap.Field{
		zap.String("name", info.Name),
		zap.String("type", info.Type),
		zap.String("component", string(info.Component)),
	}
}
