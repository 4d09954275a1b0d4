// Package stage defines the contract between the pipeline scheduler and the
// per-stage executors.
package stage

import (
	"context"

	"songforge/internal/songs"
)

// Handler describes the contract the pipeline needs from each stage. Prepare
// runs cheap validation before the song is claimed; Execute does the work and
// returns the artifacts through the song passed in.
type Handler interface {
	Prepare(context.Context, *songs.Song) error
	Execute(context.Context, *songs.Song) (songs.StageSuccess, error)
	HealthCheck(context.Context) Health
}
