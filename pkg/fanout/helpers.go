package fanout

import (
	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/job"
)

// Values extracts values from successful results.
func Values[T any](results []Result[T]) []T {
	values := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			values = append(values, r.Value)
		}
	}
	return values
}

// Partition splits results into successes and failures.
func Partition[T any](results []Result[T]) ([]T, []error) {
	successes := make([]T, 0)
	failures := make([]error, 0)
	for _, r := range results {
		if r.Err == nil {
			successes = append(successes, r.Value)
		} else {
			failures = append(failures, r.Err)
		}
	}
	return successes, failures
}

// AllSucceeded checks if all results succeeded.
func AllSucceeded[T any](results []Result[T]) bool {
	for _, r := range results {
		if r.Err != nil {
			return false
		}
	}
	return true
}

// SuccessCount returns the number of successful results.
func SuccessCount[T any](results []Result[T]) int {
	count := 0
	for _, r := range results {
		if r.Err == nil {
			count++
		}
	}
	return count
}

// Decode converts element index of every successful output into T.
// Results whose output cannot be decoded carry the decode error.
func Decode[T any](results []Result[core.Output], index int) []Result[T] {
	out := make([]Result[T], len(results))
	for i, r := range results {
		out[i] = Result[T]{Index: r.Index, JobID: r.JobID, Err: r.Err}
		if r.Err == nil {
			out[i].Value, out[i].Err = job.Decode[T](r.Value, index)
		}
	}
	return out
}
