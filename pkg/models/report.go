package models

import "errors"

// Status is the result of processing one item in a batch
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome records what happened to a single item. Err is set only for
// failures; Reason explains skips.
type Outcome struct {
	Item   *MediaItem
	Status Status
	Reason string
	Err    error
}

// Succeeded builds a success outcome
func Succeeded(item *MediaItem) Outcome {
	return Outcome{Item: item, Status: StatusSucceeded}
}

// Failed builds a failure outcome
func Failed(item *MediaItem, err error) Outcome {
	return Outcome{Item: item, Status: StatusFailed, Err: err}
}

// Skipped builds a skip outcome
func Skipped(item *MediaItem, reason string) Outcome {
	return Outcome{Item: item, Status: StatusSkipped, Reason: reason}
}

// BatchReport aggregates per-item outcomes in input order
type BatchReport struct {
	Outcomes []Outcome
}

// Add appends an outcome
func (r *BatchReport) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Count returns how many outcomes have the given status
func (r *BatchReport) Count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Items returns the items whose outcome has the given status
func (r *BatchReport) Items(status Status) []*MediaItem {
	var items []*MediaItem
	for _, o := range r.Outcomes {
		if o.Status == status {
			items = append(items, o.Item)
		}
	}
	return items
}

// Err joins every failure into one error, or nil when nothing failed
func (r *BatchReport) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed && o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}
