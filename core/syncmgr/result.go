package syncmgr

import "fmt"

// Result counts ingestion outcomes. Pure value, mergeable by pointwise addition
type Result struct {
	Processed int
	Skipped   int
	Errors    int
}

func (r *Result) Add(r1 Result) {
	r.Processed += r1.Processed
	r.Skipped += r1.Skipped
	r.Errors += r1.Errors
}

func (r Result) Merge(r1 Result) Result {
	r.Add(r1)
	return r
}

func (r Result) Total() int {
	return r.Processed + r.Skipped + r.Errors
}

// SuccessRate share of processed blocks among all counted. 0 for empty result
func (r Result) SuccessRate() float64 {
	if r.Total() == 0 {
		return 0
	}
	return float64(r.Processed) / float64(r.Total())
}

func (r Result) String() string {
	return fmt.Sprintf("processed: %d, skipped: %d, errors: %d, success rate: %.2f",
		r.Processed, r.Skipped, r.Errors, r.SuccessRate())
}
