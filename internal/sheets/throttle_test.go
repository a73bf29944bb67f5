package sheets

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

type recordingObserver struct {
	mu       sync.Mutex
	calls    map[string]int
	backoffs int
}

func (o *recordingObserver) RecordSheetsCall(operation, outcome string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = make(map[string]int)
	}
	o.calls[operation+":"+outcome]++
}

func (o *recordingObserver) RecordSheetsBackoff(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backoffs++
}

func TestThrottle_LimitsConcurrency(t *testing.T) {
	th := NewThrottle(ThrottleConfig{MaxConcurrent: 3, Pacing: time.Microsecond})

	var current, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = th.Do(context.Background(), "get", func() error {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestThrottle_RetriesOnceAfter429(t *testing.T) {
	obs := &recordingObserver{}
	th := NewThrottle(ThrottleConfig{Pacing: time.Microsecond, Backoff: 10 * time.Millisecond, Observer: obs})

	attempts := 0
	err := th.Do(context.Background(), "get", func() error {
		attempts++
		if attempts == 1 {
			return &googleapi.Error{Code: http.StatusTooManyRequests}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if obs.backoffs != 1 {
		t.Errorf("backoffs = %d, want 1", obs.backoffs)
	}
	if obs.calls["get:success"] != 1 {
		t.Errorf("success calls = %d, want 1", obs.calls["get:success"])
	}
}

func TestThrottle_GivesUpAfterSecond429(t *testing.T) {
	th := NewThrottle(ThrottleConfig{Pacing: time.Microsecond, Backoff: time.Millisecond})

	attempts := 0
	err := th.Do(context.Background(), "get", func() error {
		attempts++
		return &googleapi.Error{Code: http.StatusTooManyRequests}
	})

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests {
		t.Fatalf("Do() error = %v, want 429 googleapi.Error", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestThrottle_DoesNotRetryOtherErrors(t *testing.T) {
	th := NewThrottle(ThrottleConfig{Pacing: time.Microsecond})

	attempts := 0
	boom := errors.New("boom")
	err := th.Do(context.Background(), "append", func() error {
		attempts++
		return boom
	})

	if !errors.Is(err, boom) {
		t.Errorf("Do() error = %v, want boom", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestThrottle_CanceledContextWhileWaitingForPermit(t *testing.T) {
	th := NewThrottle(ThrottleConfig{MaxConcurrent: 1, Pacing: time.Microsecond})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = th.Do(context.Background(), "get", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := th.Do(ctx, "get", func() error { return nil })
	close(release)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}
