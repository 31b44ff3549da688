package xlease

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// =============================================================================
// 指标收集
// =============================================================================

// 指标属性使用低基数值：后端名和结果，不含资源名。
const (
	meterName = "github.com/awol-linux/ha-task-locker/pkg/distributed/xlease"

	outcomeOK       = "ok"
	outcomeRefused  = "refused"
	outcomeNotHeld  = "not_held"
	outcomeError    = "error"
)

// leaseMetrics 租约操作的 OTel 计数器。
// 创建失败时计数器为 nil，所有记录方法退化为 no-op。
type leaseMetrics struct {
	acquires metric.Int64Counter
	releases metric.Int64Counter
}

// newLeaseMetrics 创建指标收集器。
// mp 为 nil 时使用 otel 全局 MeterProvider。
func newLeaseMetrics(mp metric.MeterProvider) *leaseMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := &leaseMetrics{}
	m.acquires, _ = meter.Int64Counter(
		"xlease.acquire.total",
		metric.WithDescription("Lease acquire attempts by backend and outcome"),
	)
	m.releases, _ = meter.Int64Counter(
		"xlease.release.total",
		metric.WithDescription("Lease release attempts by backend and outcome"),
	)
	return m
}

// recordAcquire 记录一次获取结果。
func (m *leaseMetrics) recordAcquire(ctx context.Context, backend string, err error) {
	if m == nil || m.acquires == nil {
		return
	}
	m.acquires.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("outcome", acquireOutcome(err)),
	))
}

// recordRelease 记录一次释放结果。
func (m *leaseMetrics) recordRelease(ctx context.Context, backend string, err error) {
	if m == nil || m.releases == nil {
		return
	}
	m.releases.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("outcome", releaseOutcome(err)),
	))
}

func acquireOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case IsFailedToAcquire(err):
		return outcomeRefused
	default:
		return outcomeError
	}
}

func releaseOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case IsFailedToRelease(err):
		return outcomeNotHeld
	default:
		return outcomeError
	}
}
