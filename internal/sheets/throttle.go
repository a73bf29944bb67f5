package sheets

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
)

// ThrottleConfig はスプレッドシートAPI呼び出しの流量制御設定。
type ThrottleConfig struct {
	MaxConcurrent int           // 同時実行数の上限（デフォルト3）
	Pacing        time.Duration // 呼び出し間の最小間隔（デフォルト100ms）
	Backoff       time.Duration // 429受信時の待機時間（デフォルト2秒）
	Observer      Observer
}

// Throttle はスプレッドシートAPIのレート制限を避けるための流量制御。
// カウンティングセマフォで同時実行数を、rate.Limiterで呼び出し間隔を制御し、
// HTTP 429を受けた場合は一定時間待って1回だけ再試行する。
// インスタンス内でのベストエフォートな制御であり、複数インスタンス間では共有されない。
type Throttle struct {
	sem      chan struct{}
	limiter  *rate.Limiter
	backoff  time.Duration
	observer Observer
}

// NewThrottle はThrottleを生成する。ゼロ値の設定項目にはデフォルト値を使用する。
func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.Pacing <= 0 {
		cfg.Pacing = 100 * time.Millisecond
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Throttle{
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		limiter:  rate.NewLimiter(rate.Every(cfg.Pacing), 1),
		backoff:  cfg.Backoff,
		observer: cfg.Observer,
	}
}

// Do はセマフォを取得してfnを実行する。
func (t *Throttle) Do(ctx context.Context, operation string, fn func() error) error {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-t.sem }()

	for attempt := 0; ; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}

		start := time.Now()
		err := fn()
		elapsed := time.Since(start).Seconds()

		if isTooManyRequests(err) && attempt == 0 {
			t.observer.RecordSheetsCall(operation, "throttled", elapsed)
			t.observer.RecordSheetsBackoff(operation)
			slog.Warn("sheets api rate limited, backing off",
				slog.String("operation", operation),
				slog.Duration("backoff", t.backoff),
			)
			timer := time.NewTimer(t.backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
			continue
		}

		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		t.observer.RecordSheetsCall(operation, outcome, elapsed)
		return err
	}
}

// isTooManyRequests はSheets APIのHTTP 429エラーかを判定する。
func isTooManyRequests(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests
}
