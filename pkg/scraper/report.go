package scraper

import "time"

// PipelineReport summarizes one project's pipeline run
type PipelineReport struct {
	Project string
	Query   string
	Depth   int

	Discovered int
	// Satisfied items were already on disk according to the registry
	Satisfied  int
	Downloaded int
	Failed     int
	Skipped    int
	// Kept items passed the resolution filter
	Kept    int
	Aborted bool

	CachePath string
	Children  []*PipelineReport
}

// RunReport is the result of Scraper.Run
type RunReport struct {
	RunID    string
	Root     *PipelineReport
	Duration time.Duration
}

// Pipelines counts every pipeline in the run, the root included
func (r *RunReport) Pipelines() int {
	n := 0
	r.walk(func(*PipelineReport) { n++ })
	return n
}

// Totals sums downloads and failures across the run
func (r *RunReport) Totals() (downloaded, failed int) {
	r.walk(func(p *PipelineReport) {
		downloaded += p.Downloaded
		failed += p.Failed
	})
	return downloaded, failed
}

func (r *RunReport) walk(fn func(*PipelineReport)) {
	var visit func(p *PipelineReport)
	visit = func(p *PipelineReport) {
		if p == nil {
			return
		}
		fn(p)
		for _, c := range p.Children {
			visit(c)
		}
	}
	visit(r.Root)
}
