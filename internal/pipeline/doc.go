// Package pipeline schedules songs through the karaoke stages. The
// orchestrator advances one song by one stage; the runner drains the queue
// with a bounded worker pool; the daemon loops the runner on a poll
// interval under a process lock.
package pipeline
