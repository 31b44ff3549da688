package xlease

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// =============================================================================
// 日志接口
// =============================================================================

// Logger 日志接口，兼容 xsched.Logger。
// 如果不设置，使用标准库 log 输出。
type Logger interface {
	// Debug 记录调试日志
	Debug(ctx context.Context, msg string, args ...any)
	// Warn 记录警告日志
	Warn(ctx context.Context, msg string, args ...any)
	// Error 记录错误日志
	Error(ctx context.Context, msg string, args ...any)
}

// stdLogger 标准库 log 的最简实现，作为默认 Logger。
type stdLogger struct{}

func (stdLogger) Debug(_ context.Context, msg string, args ...any) { log.Printf("DEBUG "+msg, args...) }
func (stdLogger) Warn(_ context.Context, msg string, args ...any)  { log.Printf("WARN "+msg, args...) }
func (stdLogger) Error(_ context.Context, msg string, args ...any) { log.Printf("ERROR "+msg, args...) }

// =============================================================================
// 工厂选项
// =============================================================================

// FactoryOption 定义工厂的配置选项，各后端工厂共用。
// 后端不适用的选项会被忽略（如 WithKeyPrefix 仅对 Redis 生效）。
type FactoryOption func(*factoryOptions)

// factoryOptions 工厂配置。
type factoryOptions struct {
	KeyPrefix string                // Redis key 前缀，默认为空（key 即资源名）
	Now       func() time.Time      // 时间源，默认 time.Now
	Logger    Logger                // 日志，默认标准库 log
	Meter     metric.MeterProvider  // 指标，默认 otel 全局 MeterProvider
}

// defaultFactoryOptions 返回默认的工厂配置。
func defaultFactoryOptions() *factoryOptions {
	return &factoryOptions{
		KeyPrefix: "",
		Now:       time.Now,
		Logger:    stdLogger{},
	}
}

// applyFactoryOptions 应用工厂选项并返回配置。
func applyFactoryOptions(opts []FactoryOption) *factoryOptions {
	cfg := defaultFactoryOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithKeyPrefix 设置 Redis key 前缀。
// 最终 key = prefix + 资源名。默认为空，即 key 就是资源名本身。
//
// 仅 Redis 后端生效；ZooKeeper 的路径布局（/tasks/<name>）、Mongo 的
// 集合名和 SQL 的行内容由各自协议固定，不受此选项影响。
func WithKeyPrefix(prefix string) FactoryOption {
	return func(o *factoryOptions) {
		o.KeyPrefix = prefix
	}
}

// WithNow 注入时间源。
//
// ZooKeeper、Mongo、SQL 后端在判定过期时比较墙钟时间，注入可控时间源
// 可以在测试中验证过期语义而无需真实等待。默认 time.Now。
func WithNow(now func() time.Time) FactoryOption {
	return func(o *factoryOptions) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithLogger 设置日志实现。
// 用于法定数组合记录回滚/恢复阶段的尽力而为错误。默认标准库 log。
func WithLogger(logger Logger) FactoryOption {
	return func(o *factoryOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider。
// 默认使用 otel 全局 MeterProvider（未安装 SDK 时为 no-op）。
func WithMeterProvider(mp metric.MeterProvider) FactoryOption {
	return func(o *factoryOptions) {
		if mp != nil {
			o.Meter = mp
		}
	}
}
