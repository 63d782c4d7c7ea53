// Package queuetest runs an in-process queued compute backend for tests and
// demos.
//
// A Server exposes the same routes a real backend does (config, run/predict,
// the queue event stream and reset) and executes registered Fns locally.
// Queued calls wait for one of a fixed number of slots, report their rank,
// stream generator yields and progress, and stop when reset. Fns may instead
// replay a fixed Script of raw messages to exercise protocol corner cases.
package queuetest
