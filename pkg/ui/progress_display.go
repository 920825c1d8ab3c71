package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"pinscraper/pkg/models"
)

// ProgressDisplay renders a single-line progress bar for one download batch
type ProgressDisplay struct {
	mu        sync.Mutex
	label     string
	total     int
	done      int
	failed    int
	skipped   int
	startTime time.Time
	isDebug   bool
}

// NewProgressDisplay creates a display for a batch of total items
func NewProgressDisplay(label string, total int, debug bool) *ProgressDisplay {
	return &ProgressDisplay{
		label:     label,
		total:     total,
		startTime: time.Now(),
		isDebug:   debug,
	}
}

// Reset starts a new batch under the same display
func (p *ProgressDisplay) Reset(label string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.label = label
	p.total = total
	p.done, p.failed, p.skipped = 0, 0, 0
	p.startTime = time.Now()
}

// Update records one finished item. Its signature matches the downloader's
// progress callback.
func (p *ProgressDisplay) Update(done, total int, outcome models.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = done
	p.total = total
	switch outcome.Status {
	case models.StatusFailed:
		p.failed++
		if p.isDebug {
			printf(false, "\n%s Failed: %s - %v\n", Red("✗"), outcome.Item.ID, outcome.Err)
		}
	case models.StatusSkipped:
		p.skipped++
	}

	if !p.isDebug {
		printf(false, "\r%s\r%s", strings.Repeat(" ", 100), p.line())
	}
}

// line formats the current progress
func (p *ProgressDisplay) line() string {
	const barWidth = 20
	filled := 0
	if p.total > 0 {
		filled = p.done * barWidth / p.total
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("%s [%s] %d/%d • %s",
		Cyan(p.label),
		bar,
		p.done,
		p.total,
		formatDuration(time.Since(p.startTime)),
	)
	if p.failed > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d failed", p.failed)))
	}
	if p.skipped > 0 {
		line += fmt.Sprintf(" • %s", Dim(fmt.Sprintf("%d skipped", p.skipped)))
	}
	return line
}

// Complete prints the batch summary
func (p *ProgressDisplay) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	printf(false, "\n%s %s: %d of %d items in %s\n",
		Green("✓"),
		p.label,
		p.done-p.failed-p.skipped,
		p.total,
		formatDuration(time.Since(p.startTime)),
	)
	if p.failed > 0 {
		printf(false, "  %s %d downloads failed\n", Dim("•"), p.failed)
	}
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
