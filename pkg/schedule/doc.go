// Package schedule provides firing schedules for recurring submissions.
//
//   - Every for fixed intervals
//   - Daily, DailyIn and Weekly for wall-clock times
//   - ParseCron and Cron for cron expressions and descriptors
//
// A Client uses a Schedule in Every to submit the same call repeatedly.
package schedule
