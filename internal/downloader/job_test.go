package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-version-updater/internal/models"
)

type recordingListener struct {
	mu        sync.Mutex
	finished  int
	failures  int
	progress  []float64
	completed bool
}

func (l *recordingListener) OnProgressChanged(_ *Job, progress float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, progress)
}

func (l *recordingListener) OnJobFinished(job *Job, failures int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished++
	l.failures = failures
	l.completed = job.IsComplete()
}

func (l *recordingListener) finishedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finished
}

func waitJob(t *testing.T, job *Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := job.Wait(ctx); err != nil {
		t.Fatalf("job '%s' did not finish: %v", job.Name(), err)
	}
}

// TestJob_Empty tests that a job without items completes synchronously
func TestJob_Empty(t *testing.T) {
	exec := NewExecutor(context.Background(), 2)
	defer exec.Shutdown()

	listener := &recordingListener{}
	job := NewJob("empty", false, listener)
	if job.Progress() != -1 {
		t.Errorf("Expected indeterminate progress for empty job, got %v", job.Progress())
	}

	if err := job.Start(context.Background(), exec, NewDownloader(nil)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !job.IsComplete() {
		t.Error("Expected empty job to be complete when Start returns")
	}
	if listener.finishedCount() != 1 || listener.failures != 0 || !listener.completed {
		t.Errorf("finished=%d failures=%d completed=%v", listener.finished, listener.failures, listener.completed)
	}
	select {
	case <-job.Done():
	default:
		t.Error("Done channel should be closed")
	}
}

// TestJob_StateGuards tests that a started job rejects changes and restarts
func TestJob_StateGuards(t *testing.T) {
	exec := NewExecutor(context.Background(), 1)
	defer exec.Shutdown()

	job := NewJob("guards", false, nil)
	if err := job.Start(context.Background(), exec, NewDownloader(nil)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := job.AddDownloadables(newItem("http://example.invalid/x", filepath.Join(t.TempDir(), "x"))); !errors.Is(err, ErrJobStarted) {
		t.Errorf("Expected ErrJobStarted from AddDownloadables, got %v", err)
	}
	if err := job.Start(context.Background(), exec, NewDownloader(nil)); !errors.Is(err, ErrJobStarted) {
		t.Errorf("Expected ErrJobStarted from second Start, got %v", err)
	}
}

// TestJob_Success tests a batch drained by several workers
func TestJob_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := []byte("content of " + r.URL.Path)
		w.Header().Set("ETag", md5Hex(body))
		w.Write(body)
	}))
	defer server.Close()

	exec := NewExecutor(context.Background(), 3)
	defer exec.Shutdown()

	dir := t.TempDir()
	listener := &recordingListener{}
	job := NewJob("batch", false, listener)
	for i := 0; i < 10; i++ {
		path := fmt.Sprintf("/file-%d", i)
		item := NewDownloadable(models.DownloadSpec{
			URL:          server.URL + path,
			Target:       filepath.Join(dir, fmt.Sprintf("file-%d", i)),
			ExpectedSize: int64(len("content of " + path)),
		})
		if err := job.AddDownloadables(item); err != nil {
			t.Fatal(err)
		}
	}

	if err := job.Start(context.Background(), exec, NewDownloader(server.Client())); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitJob(t, job)

	if job.Successful() != 10 || job.Failures() != 0 {
		t.Errorf("successful=%d failures=%d", job.Successful(), job.Failures())
	}
	if listener.finishedCount() != 1 {
		t.Errorf("Expected exactly one finished event, got %d", listener.finishedCount())
	}
	if job.Progress() != 1 {
		t.Errorf("Expected progress 1, got %v", job.Progress())
	}
	if len(listener.progress) == 0 {
		t.Error("Expected progress events")
	}
}

// TestJob_MaxAttempts tests that a failing item is tried exactly MaxAttempts times
func TestJob_MaxAttempts(t *testing.T) {
	for _, ignore := range []bool{false, true} {
		t.Run(fmt.Sprintf("ignoreFailures=%v", ignore), func(t *testing.T) {
			var hits int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer server.Close()

			exec := NewExecutor(context.Background(), 4)
			defer exec.Shutdown()

			listener := &recordingListener{}
			job := NewJob("failing", ignore, listener)
			item := newItem(server.URL, filepath.Join(t.TempDir(), "never.jar"))
			if err := job.AddDownloadables(item); err != nil {
				t.Fatal(err)
			}
			if err := job.Start(context.Background(), exec, NewDownloader(server.Client())); err != nil {
				t.Fatal(err)
			}
			waitJob(t, job)

			if got := atomic.LoadInt32(&hits); got != MaxAttempts {
				t.Errorf("Expected %d requests, got %d", MaxAttempts, got)
			}
			if item.Attempts() != MaxAttempts {
				t.Errorf("Expected %d attempts, got %d", MaxAttempts, item.Attempts())
			}
			wantFailures := 1
			if ignore {
				wantFailures = 0
			}
			if job.Failures() != wantFailures || listener.failures != wantFailures {
				t.Errorf("failures=%d listener=%d, want %d", job.Failures(), listener.failures, wantFailures)
			}
			if listener.finishedCount() != 1 {
				t.Errorf("Expected exactly one finished event, got %d", listener.finishedCount())
			}
		})
	}
}

// TestJob_Cancel tests that cancelling the job context finishes the job
func TestJob_Cancel(t *testing.T) {
	started := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}))
	defer server.Close()

	exec := NewExecutor(context.Background(), 1)
	defer exec.Shutdown()

	dir := t.TempDir()
	listener := &recordingListener{}
	job := NewJob("cancelled", false, listener)
	for i := 0; i < 3; i++ {
		if err := job.AddDownloadables(newItem(server.URL, filepath.Join(dir, fmt.Sprintf("f%d", i)))); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := job.Start(ctx, exec, NewDownloader(server.Client())); err != nil {
		t.Fatal(err)
	}
	<-started
	cancel()
	waitJob(t, job)

	if job.Failures() != 3 || job.Successful() != 0 {
		t.Errorf("failures=%d successful=%d", job.Failures(), job.Successful())
	}
	if listener.finishedCount() != 1 {
		t.Errorf("Expected exactly one finished event, got %d", listener.finishedCount())
	}
}

// TestProgressContainer tests byte accounting
func TestProgressContainer(t *testing.T) {
	var p ProgressContainer
	var calls int
	p.setListener(func() { calls++ })

	p.SetTotal(10)
	p.AddProgress(4)
	if p.Ratio() != 0.4 {
		t.Errorf("Ratio = %v, want 0.4", p.Ratio())
	}
	p.AddProgress(8)
	if p.Total() != 12 || p.Current() != 12 {
		t.Errorf("total should follow current past it, got %d/%d", p.Current(), p.Total())
	}
	if calls != 3 {
		t.Errorf("Expected 3 change notifications, got %d", calls)
	}

	var empty ProgressContainer
	if empty.Ratio() != 0 {
		t.Errorf("Ratio of empty container = %v", empty.Ratio())
	}
}

// TestExecutor_SurvivesPanics tests that a panicking task does not kill its worker
func TestExecutor_SurvivesPanics(t *testing.T) {
	exec := NewExecutor(context.Background(), 1)

	done := make(chan struct{})
	if err := exec.Submit(func(context.Context) error { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	if err := exec.Submit(func(context.Context) error { return errors.New("plain failure") }); err != nil {
		t.Fatal(err)
	}
	if err := exec.Submit(func(context.Context) error { close(done); return nil }); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}

	exec.Shutdown()
	if err := exec.Submit(func(context.Context) error { return nil }); !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Expected ErrExecutorClosed, got %v", err)
	}
}

// TestExecutor_StopCancelsTasks tests that Stop cancels the task context
func TestExecutor_StopCancelsTasks(t *testing.T) {
	exec := NewExecutor(context.Background(), 1)
	running := make(chan struct{})
	var sawCancel atomic.Bool
	exec.Submit(func(ctx context.Context) error {
		close(running)
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	})
	<-running
	exec.Stop()
	if !sawCancel.Load() {
		t.Error("Expected the running task to observe cancellation")
	}
}
