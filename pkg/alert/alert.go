// Package alert escalates conditions that need an operator, such as sustained
// write contention on a single trending item, to Sentry.
package alert

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled atomic.Bool

// Init 配置 sentry；dsn 为空时告警只是空操作
func Init(dsn, environment string, sampleRate float64) error {
	if dsn == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		SampleRate:  sampleRate,
	})
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	enabled.Store(true)
	return nil
}

// Enabled reports whether a Sentry client was configured.
func Enabled() bool { return enabled.Load() }

// Capture 上报错误并附带标签，返回事件 ID（未启用时为空）
func Capture(err error, tags map[string]string) string {
	if err == nil || !enabled.Load() {
		return ""
	}
	var id *sentry.EventID
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetTags(tags)
		id = sentry.CaptureException(err)
	})
	if id == nil {
		return ""
	}
	return string(*id)
}

// Flush 等待事件发送完成
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentry.Flush(timeout)
	}
}
