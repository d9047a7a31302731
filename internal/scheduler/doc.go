// Package scheduler runs named recurring jobs.
//
// A JobRegistry is built once at startup and passed to whatever needs to
// query or trigger jobs. Each job has its own cadence and a re-entrancy
// guard: a job never overlaps itself, and triggering a running job reports
// busy instead of queuing. The next run is always computed from the actual
// completion time plus the cadence, so a slow run pushes the next one back
// rather than stacking up.
//
// Handler errors and panics are recorded as the job's last error and never
// remove the job from its cadence.
package scheduler
