// Package security provides validation, sanitization, and limits for the jobs package.
//
// This package includes:
//   - Input validation for endpoint api names and session hashes
//   - Payload size limits for serialized job arguments
//   - Error message sanitization before errors are persisted to job history
//   - Clamping functions to enforce safe limits on retries and worker counts
//
// Most users should import the root package github.com/jdziat/simple-remote-jobs
// which re-exports these functions.
package security
