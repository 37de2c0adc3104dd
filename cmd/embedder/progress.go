package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"

	"github.com/aprskalo1/UMS/internal/workflow"
)

// ingestProgress renders a progress bar on terminals and one line per file
// elsewhere.
type ingestProgress struct {
	out     io.Writer
	writer  progress.Writer
	tracker *progress.Tracker
}

func newIngestProgress(out io.Writer, total int) *ingestProgress {
	p := &ingestProgress{out: out}
	if !isTerminal(out) || total == 0 {
		return p
	}
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true

	tracker := &progress.Tracker{
		Message: "Embedding",
		Total:   int64(total),
		Units:   progress.UnitsDefault,
	}
	pw.AppendTracker(tracker)
	go pw.Render()

	p.writer = pw
	p.tracker = tracker
	return p
}

func (p *ingestProgress) observe(done, total int, result workflow.JobResult) {
	if p.tracker != nil {
		if result.Err != nil {
			p.writer.Log("skipped %s: %v", result.JobID, result.Err)
		}
		p.tracker.Increment(1)
		return
	}
	status := "ok"
	if result.Err != nil {
		status = "failed: " + result.Err.Error()
	}
	fmt.Fprintf(p.out, "[%d/%d] %s %s\n", done, total, filepath.Base(result.JobID), status)
}

func (p *ingestProgress) finish() {
	if p.writer == nil {
		return
	}
	p.tracker.MarkAsDone()
	for p.writer.IsRenderInProgress() {
		p.writer.Stop()
		time.Sleep(10 * time.Millisecond)
	}
}
