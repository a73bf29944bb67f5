package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/expenfyre/internal/auth"
)

// mockSweeper はSweeperインターフェースのモック実装。
type mockSweeper struct {
	calls     atomic.Int32
	cleanupFn func(ctx context.Context) (auth.CleanupResult, error)
}

func (m *mockSweeper) Cleanup(ctx context.Context) (auth.CleanupResult, error) {
	m.calls.Add(1)
	return m.cleanupFn(ctx)
}

type recordedDeletion struct {
	kind  string
	count int
}

type mockRecorder struct {
	deletions []recordedDeletion
}

func (m *mockRecorder) RecordCleanupDeleted(kind string, count int) {
	m.deletions = append(m.deletions, recordedDeletion{kind, count})
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestCleanupJob_Run_LogsAndRecords(t *testing.T) {
	var buf bytes.Buffer
	sweeper := &mockSweeper{cleanupFn: func(context.Context) (auth.CleanupResult, error) {
		return auth.CleanupResult{RefreshTokens: 2, Blacklist: 1}, nil
	}}
	recorder := &mockRecorder{}
	job := NewCleanupJob(sweeper, recorder, newTestLogger(&buf))

	result, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Total() != 3 {
		t.Errorf("Total() = %d, want 3", result.Total())
	}

	if len(recorder.deletions) != 3 || recorder.deletions[0] != (recordedDeletion{"refresh_token", 2}) {
		t.Errorf("deletions = %+v", recorder.deletions)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log is not JSON: %v\n%s", err, buf.String())
	}
	if entry["refresh_tokens"] != float64(2) || entry["blacklist"] != float64(1) {
		t.Errorf("log entry = %v", entry)
	}
}

func TestCleanupJob_Run_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	sweeper := &mockSweeper{cleanupFn: func(context.Context) (auth.CleanupResult, error) {
		return auth.CleanupResult{RefreshTokens: 1}, errors.New("kv unavailable")
	}}
	job := NewCleanupJob(sweeper, nil, newTestLogger(&buf))

	_, err := job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "kv unavailable") {
		t.Fatalf("Run() error = %v, want wrapped cause", err)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("expected error log, got %s", buf.String())
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStops(t *testing.T) {
	var buf bytes.Buffer
	sweeper := &mockSweeper{cleanupFn: func(context.Context) (auth.CleanupResult, error) {
		return auth.CleanupResult{}, nil
	}}
	job := NewCleanupJob(sweeper, nil, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for sweeper.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("cleanup did not run on start")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
