package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"

	"go-version-updater/internal/downloader"
)

const progressBarWidth = 30

// progressPrinter renders one live line per job. It is a downloader.Listener.
type progressPrinter struct {
	writer   *uilive.Writer
	stopOnce sync.Once

	mu      sync.Mutex
	order   []string
	percent map[string]int
	status  map[string]string
}

func newProgressPrinter() *progressPrinter {
	writer := uilive.New()
	writer.Start()
	return &progressPrinter{
		writer:  writer,
		percent: make(map[string]int),
		status:  make(map[string]string),
	}
}

func (p *progressPrinter) track(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.percent[name]; !ok {
		p.order = append(p.order, name)
		p.percent[name] = -1
	}
}

func (p *progressPrinter) OnProgressChanged(job *downloader.Job, progress float64) {
	pct := -1
	if progress >= 0 {
		pct = int(progress * 100)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.percent[job.Name()] == pct {
		return
	}
	p.percent[job.Name()] = pct
	p.render()
}

func (p *progressPrinter) OnJobFinished(job *downloader.Job, failures int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.percent[job.Name()] = 100
	if failures > 0 {
		p.status[job.Name()] = fmt.Sprintf("%d failed", failures)
	} else {
		p.status[job.Name()] = "done"
	}
	p.render()
}

// render must be called with mu held.
func (p *progressPrinter) render() {
	for _, name := range p.order {
		pct := p.percent[name]
		bar := strings.Repeat(" ", progressBarWidth)
		label := "  ?%"
		if pct >= 0 {
			filled := pct * progressBarWidth / 100
			bar = strings.Repeat("=", filled) + strings.Repeat(" ", progressBarWidth-filled)
			label = fmt.Sprintf("%3d%%", pct)
		}
		line := fmt.Sprintf("[%s] [%s] %s", name, bar, label)
		if status := p.status[name]; status != "" {
			line += " " + status
		}
		fmt.Fprintln(p.writer, line)
	}
	if err := p.writer.Flush(); err != nil {
		log.WithError(err).Debug("Progress output flush failed")
	}
}

// Stop flushes the last frame. Safe to call more than once.
func (p *progressPrinter) Stop() {
	p.stopOnce.Do(p.writer.Stop)
}

// runJobs starts jobs on the command's executor and waits for all of them.
func runJobs(ctx context.Context, jobs ...*downloader.Job) error {
	dl := downloader.NewDownloader(&http.Client{Transport: globalHttpTransport})
	for _, job := range jobs {
		if err := job.Start(ctx, globalExecutor, dl); err != nil {
			return err
		}
	}
	for _, job := range jobs {
		if err := job.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// sortedTargets returns the targets of items in a stable order.
func sortedTargets(items []*downloader.Downloadable) []string {
	out := make([]string, 0, len(items))
	for _, d := range items {
		out = append(out, d.Target)
	}
	sort.Strings(out)
	return out
}
