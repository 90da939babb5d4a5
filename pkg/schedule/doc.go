// Package schedule runs recurring job syncs.
//
// This package includes:
//   - Schedule with Every(), Daily(), Weekly(), Weekdays() and Cron() constructors, and In() for local time
//   - Parse() for cron expressions and descriptors such as "@every 10m"
//   - Scheduler, which syncs users' and washers' jobs on a schedule
//
// Scheduler is built on github.com/robfig/cron/v3; a run that overlaps the
// next tick makes that tick skip.
package schedule
