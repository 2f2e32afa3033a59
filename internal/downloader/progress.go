package downloader

import "sync/atomic"

// ProgressContainer tracks the bytes of one Downloadable. Every change is
// reported to the owning job.
type ProgressContainer struct {
	current atomic.Int64
	total   atomic.Int64

	onChange atomic.Pointer[func()]
}

// Current returns the bytes transferred so far.
func (p *ProgressContainer) Current() int64 { return p.current.Load() }

// Total returns the expected number of bytes.
func (p *ProgressContainer) Total() int64 { return p.total.Load() }

// Ratio returns current/total, or 0 when total is unknown.
func (p *ProgressContainer) Ratio() float64 {
	total := p.Total()
	if total == 0 {
		return 0
	}
	return float64(p.Current()) / float64(total)
}

// SetTotal sets the expected byte count.
func (p *ProgressContainer) SetTotal(total int64) {
	p.total.Store(total)
	p.changed()
}

// AddProgress adds n transferred bytes. The total grows when current
// passes it.
func (p *ProgressContainer) AddProgress(n int64) {
	current := p.current.Add(n)
	p.raiseTotal(current)
	p.changed()
}

// Complete marks the item as fully transferred.
func (p *ProgressContainer) Complete() {
	total := p.Total()
	p.current.Store(total)
	p.raiseTotal(total)
	p.changed()
}

func (p *ProgressContainer) raiseTotal(current int64) {
	for {
		total := p.total.Load()
		if current <= total || p.total.CompareAndSwap(total, current) {
			return
		}
	}
}

func (p *ProgressContainer) setListener(fn func()) {
	p.onChange.Store(&fn)
}

func (p *ProgressContainer) changed() {
	if fn := p.onChange.Load(); fn != nil {
		(*fn)()
	}
}
