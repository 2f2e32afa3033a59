package downloader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

const (
	// MaxAttempts is how many times one item is tried before it is abandoned.
	MaxAttempts = 5
	// AssumedAverageFileSize stands in for the size of items whose size is
	// unknown until the response arrives.
	AssumedAverageFileSize = 5 * 1024 * 1024
)

// ErrJobStarted is returned when a started job is modified or started again.
var ErrJobStarted = errors.New("download job has already started")

// Listener receives job events. Calls come from executor goroutines, so
// implementations must be safe for concurrent use.
type Listener interface {
	// OnProgressChanged reports 0..1, or -1 when the total is unknown.
	OnProgressChanged(job *Job, progress float64)
	// OnJobFinished is called exactly once per started job.
	OnJobFinished(job *Job, failures int)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Progress func(job *Job, progress float64)
	Finished func(job *Job, failures int)
}

func (l ListenerFuncs) OnProgressChanged(job *Job, progress float64) {
	if l.Progress != nil {
		l.Progress(job, progress)
	}
}

func (l ListenerFuncs) OnJobFinished(job *Job, failures int) {
	if l.Finished != nil {
		l.Finished(job, failures)
	}
}

// Job is a named batch of Downloadables drained by executor workers.
type Job struct {
	name           string
	ignoreFailures bool
	listener       Listener

	itemsMu sync.RWMutex
	all     []*Downloadable
	started bool

	mu         sync.Mutex
	remaining  []*Downloadable
	successful []*Downloadable
	failures   []*Downloadable

	running  atomic.Int32
	complete atomic.Bool
	done     chan struct{}
}

// NewJob creates an empty job. Best-effort jobs (ignoreFailures) never
// report abandoned items as failures.
func NewJob(name string, ignoreFailures bool, listener Listener) *Job {
	if listener == nil {
		listener = ListenerFuncs{}
	}
	return &Job{
		name:           name,
		ignoreFailures: ignoreFailures,
		listener:       listener,
		done:           make(chan struct{}),
	}
}

func (j *Job) Name() string         { return j.name }
func (j *Job) IgnoreFailures() bool { return j.ignoreFailures }

// AddDownloadables queues items. It fails once the job has started.
func (j *Job) AddDownloadables(items ...*Downloadable) error {
	j.itemsMu.Lock()
	if j.started {
		j.itemsMu.Unlock()
		return fmt.Errorf("%w: cannot add to job '%s'", ErrJobStarted, j.name)
	}
	for _, d := range items {
		if d.ExpectedSize > 0 {
			d.progress.SetTotal(d.ExpectedSize)
		} else {
			d.progress.SetTotal(AssumedAverageFileSize)
		}
		d.progress.setListener(j.updateProgress)
		j.all = append(j.all, d)
	}
	j.itemsMu.Unlock()

	j.mu.Lock()
	j.remaining = append(j.remaining, items...)
	j.mu.Unlock()

	j.updateProgress()
	return nil
}

// Size returns the number of items in the job.
func (j *Job) Size() int {
	j.itemsMu.RLock()
	defer j.itemsMu.RUnlock()
	return len(j.all)
}

// Items returns every Downloadable added to the job.
func (j *Job) Items() []*Downloadable {
	j.itemsMu.RLock()
	defer j.itemsMu.RUnlock()
	out := make([]*Downloadable, len(j.all))
	copy(out, j.all)
	return out
}

// Start submits one draining task per executor worker. A job without items
// completes before Start returns. Cancelling ctx stops the workers; items
// left unattempted count as failures.
func (j *Job) Start(ctx context.Context, exec *Executor, dl *Downloader) error {
	j.itemsMu.Lock()
	if j.started {
		j.itemsMu.Unlock()
		return fmt.Errorf("%w: cannot start job '%s' twice", ErrJobStarted, j.name)
	}
	j.started = true
	size := len(j.all)
	j.itemsMu.Unlock()

	if size == 0 {
		log.Infof("[Job] Download job '%s' skipped as there are no files to download", j.name)
		j.finish()
		return nil
	}

	threads := exec.Workers()
	j.running.Store(int32(threads))
	log.Infof("[Job] Download job '%s' started (%d workers, %d files)", j.name, threads, size)

	for i := 0; i < threads; i++ {
		err := exec.Submit(func(taskCtx context.Context) error {
			return j.popAndDownload(ctx, taskCtx, dl)
		})
		if err != nil {
			for k := i; k < threads; k++ {
				j.workerExited()
			}
			return fmt.Errorf("starting job '%s': %w", j.name, err)
		}
	}
	return nil
}

func (j *Job) popAndDownload(jobCtx, taskCtx context.Context, dl *Downloader) error {
	defer j.workerExited()

	ctx, cancel := context.WithCancel(jobCtx)
	defer cancel()
	stop := context.AfterFunc(taskCtx, cancel)
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := j.pop()
		if d == nil {
			return nil
		}

		if d.Attempts() >= MaxAttempts {
			j.abandon(d)
			log.Warnf("[Job] Gave up trying to download %s for job '%s'", d.URL, j.name)
			continue
		}

		result, err := dl.Download(ctx, d)
		if err != nil {
			log.WithError(err).Warnf("[Job] Couldn't download %s for job '%s'", d.URL, j.name)
			j.push(d)
			continue
		}
		j.succeed(d)
		log.Debugf("[Job] Finished downloading %s for job '%s': %s", d.Target, j.name, result)
	}
}

func (j *Job) pop() *Downloadable {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.remaining) == 0 {
		return nil
	}
	d := j.remaining[0]
	j.remaining[0] = nil
	j.remaining = j.remaining[1:]
	return d
}

func (j *Job) push(d *Downloadable) {
	j.mu.Lock()
	j.remaining = append(j.remaining, d)
	j.mu.Unlock()
}

func (j *Job) succeed(d *Downloadable) {
	j.mu.Lock()
	j.successful = append(j.successful, d)
	j.mu.Unlock()
}

func (j *Job) abandon(d *Downloadable) {
	if j.ignoreFailures {
		return
	}
	j.mu.Lock()
	j.failures = append(j.failures, d)
	j.mu.Unlock()
}

func (j *Job) workerExited() {
	if j.running.Add(-1) == 0 {
		j.finish()
	}
}

// finish runs once, on the goroutine that saw the last worker exit.
func (j *Job) finish() {
	j.mu.Lock()
	for _, d := range j.remaining {
		if !j.ignoreFailures {
			j.failures = append(j.failures, d)
		}
	}
	j.remaining = nil
	failures := len(j.failures)
	successful := len(j.successful)
	j.mu.Unlock()

	j.complete.Store(true)
	log.Infof("[Job] Download job '%s' finished: %d successful, %d failed", j.name, successful, failures)
	j.listener.OnJobFinished(j, failures)
	close(j.done)
}

func (j *Job) updateProgress() {
	j.listener.OnProgressChanged(j, j.Progress())
}

// Progress returns the share of bytes transferred across all items, or -1
// when the total is zero.
func (j *Job) Progress() float64 {
	var current, total int64
	j.itemsMu.RLock()
	for _, d := range j.all {
		current += d.progress.Current()
		total += d.progress.Total()
	}
	j.itemsMu.RUnlock()
	if total <= 0 {
		return -1
	}
	return float64(current) / float64(total)
}

// Successful returns the number of items downloaded.
func (j *Job) Successful() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.successful)
}

// Failures returns the number of items given up on.
func (j *Job) Failures() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.failures)
}

// SuccessfulItems returns the downloaded items.
func (j *Job) SuccessfulItems() []*Downloadable {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*Downloadable, len(j.successful))
	copy(out, j.successful)
	return out
}

// FailedItems returns the items given up on.
func (j *Job) FailedItems() []*Downloadable {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*Downloadable, len(j.failures))
	copy(out, j.failures)
	return out
}

func (j *Job) IsStarted() bool {
	j.itemsMu.RLock()
	defer j.itemsMu.RUnlock()
	return j.started
}

func (j *Job) IsComplete() bool { return j.complete.Load() }

// Done is closed after the finished listener has returned.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
