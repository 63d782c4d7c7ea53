// Package core provides the fundamental types and interfaces for the jobs package.
//
// This package contains:
//   - StatusCode, StatusUpdate and ProgressUnit describing job progress
//   - Output, the decoded result payload of a remote function
//   - JobRecord and the Storage interface for job history
//   - Event types for client monitoring
//   - Error types surfaced through a job's result
//
// Most users should import the root package github.com/jdziat/simple-remote-jobs
// instead of this package directly.
package core
