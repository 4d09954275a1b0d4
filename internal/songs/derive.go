package songs

// NextStage computes the first stage whose artifacts are missing, walking the
// fixed pipeline order. The upload stage is skipped when uploads are
// disabled. The second return value is false when every applicable stage is
// complete.
func NextStage(song *Song, includeUpload bool) (Stage, bool) {
	for _, spec := range pipelineOrder {
		if spec.stage == StageUpload && !includeUpload {
			continue
		}
		if !song.Artifacts.StageComplete(spec.stage) {
			return spec.stage, true
		}
	}
	return "", false
}

// DeriveStatus recomputes the status a healthy song should hold from its
// artifacts alone: pending before any work, the done-status of the last
// completed stage in between, completed when nothing remains. Failure states
// are recorded by the store when outcomes arrive and are not derivable from
// artifacts.
func DeriveStatus(song *Song, includeUpload bool) Status {
	next, ok := NextStage(song, includeUpload)
	if !ok {
		return StatusCompleted
	}
	previous := Stage("")
	for _, spec := range pipelineOrder {
		if spec.stage == next {
			break
		}
		if spec.stage == StageUpload && !includeUpload {
			continue
		}
		previous = spec.stage
	}
	if previous == "" {
		return StatusPending
	}
	return DoneStatus(previous)
}
