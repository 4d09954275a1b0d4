package songs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a song job.
type Status string

const (
	StatusPending      Status = "pending"
	StatusDownloading  Status = "downloading"
	StatusDownloaded   Status = "downloaded"
	StatusSeparating   Status = "separating"
	StatusSeparated    Status = "separated"
	StatusModifying    Status = "modifying"
	StatusModified     Status = "modified"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusRendering    Status = "rendering"
	StatusRendered     Status = "rendered"
	StatusUploading    Status = "uploading"
	StatusCompleted    Status = "completed"
	StatusRetryable    Status = "retryable"
	StatusFailed       Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusDownloaded,
	StatusSeparating,
	StatusSeparated,
	StatusModifying,
	StatusModified,
	StatusTranscribing,
	StatusTranscribed,
	StatusRendering,
	StatusRendered,
	StatusUploading,
	StatusCompleted,
	StatusRetryable,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusDownloading:  {},
	StatusSeparating:   {},
	StatusModifying:    {},
	StatusTranscribing: {},
	StatusRendering:    {},
	StatusUploading:    {},
}

// Stage is one discrete pipeline step.
type Stage string

const (
	StageDownload   Stage = "download"
	StageSeparate   Stage = "separate"
	StageModify     Stage = "modify"
	StageTranscribe Stage = "transcribe"
	StageRender     Stage = "render"
	StageUpload     Stage = "upload"
)

type stageSpec struct {
	stage      Stage
	processing Status
	done       Status
}

var pipelineOrder = []stageSpec{
	{StageDownload, StatusDownloading, StatusDownloaded},
	{StageSeparate, StatusSeparating, StatusSeparated},
	{StageModify, StatusModifying, StatusModified},
	{StageTranscribe, StatusTranscribing, StatusTranscribed},
	{StageRender, StatusRendering, StatusRendered},
	{StageUpload, StatusUploading, StatusCompleted},
}

// PipelineStages returns the fixed stage order.
func PipelineStages() []Stage {
	stages := make([]Stage, len(pipelineOrder))
	for i, spec := range pipelineOrder {
		stages[i] = spec.stage
	}
	return stages
}

// ProcessingStatuses returns every in-flight status in pipeline order.
func ProcessingStatuses() []Status {
	out := make([]Status, 0, len(pipelineOrder))
	for _, spec := range pipelineOrder {
		out = append(out, spec.processing)
	}
	return out
}

// ProcessingStatus returns the in-flight status for a stage.
func ProcessingStatus(stage Stage) Status {
	for _, spec := range pipelineOrder {
		if spec.stage == stage {
			return spec.processing
		}
	}
	return ""
}

// DoneStatus returns the status a song holds after a stage completes.
func DoneStatus(stage Stage) Status {
	for _, spec := range pipelineOrder {
		if spec.stage == stage {
			return spec.done
		}
	}
	return ""
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, spec := range pipelineOrder {
		if spec.stage == normalized {
			return normalized, true
		}
	}
	return "", false
}

// Artifacts holds the durable outputs of completed stages. A field is set if
// and only if the producing stage completed; completed artifacts are never
// mutated in place, re-runs write superseding paths.
type Artifacts struct {
	AudioPath        string
	VocalsPath       string
	InstrumentalPath string
	ModifiedPath     string
	TranscriptPath   string
	SubtitlePath     string
	VideoPath        string
	UploadID         string
}

// StageComplete reports whether the artifacts required from a stage are present.
func (a Artifacts) StageComplete(stage Stage) bool {
	switch stage {
	case StageDownload:
		return a.AudioPath != ""
	case StageSeparate:
		return a.VocalsPath != "" && a.InstrumentalPath != ""
	case StageModify:
		return a.ModifiedPath != ""
	case StageTranscribe:
		return a.TranscriptPath != "" && a.SubtitlePath != ""
	case StageRender:
		return a.VideoPath != ""
	case StageUpload:
		return a.UploadID != ""
	default:
		return false
	}
}

// Merge copies non-empty fields from other into a copy of a.
func (a Artifacts) Merge(other Artifacts) Artifacts {
	if other.AudioPath != "" {
		a.AudioPath = other.AudioPath
	}
	if other.VocalsPath != "" {
		a.VocalsPath = other.VocalsPath
	}
	if other.InstrumentalPath != "" {
		a.InstrumentalPath = other.InstrumentalPath
	}
	if other.ModifiedPath != "" {
		a.ModifiedPath = other.ModifiedPath
	}
	if other.TranscriptPath != "" {
		a.TranscriptPath = other.TranscriptPath
	}
	if other.SubtitlePath != "" {
		a.SubtitlePath = other.SubtitlePath
	}
	if other.VideoPath != "" {
		a.VideoPath = other.VideoPath
	}
	if other.UploadID != "" {
		a.UploadID = other.UploadID
	}
	return a
}

// FailureRecord is one audit entry in a song's failure history.
type FailureRecord struct {
	Stage    Stage     `json:"stage"`
	Attempt  int       `json:"attempt"`
	Message  string    `json:"message"`
	Terminal bool      `json:"terminal"`
	At       time.Time `json:"at"`
}

// Song represents a song job persisted in SQLite.
type Song struct {
	ID           int64
	VideoID      string
	Title        string
	Artist       string
	Channel      string
	URL          string
	Status       Status
	CurrentStage string
	LastError    string
	Attempts     map[Stage]int
	CompletedAt  map[Stage]time.Time
	History      []FailureRecord
	Artifacts    Artifacts
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewSong carries the descriptive fields for enqueueing a song.
type NewSong struct {
	VideoID string
	Title   string
	Artist  string
	Channel string
	URL     string
}

// HealthSummary describes aggregated song counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Pending   int
	Working   int
	Retryable int
	Failed    int
	Completed int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight stage.
func (s *Song) IsProcessing() bool {
	_, ok := processingStatuses[s.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// Terminal reports whether no further scheduling should happen for a status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AttemptCount returns the recorded attempts for a stage.
func (s *Song) AttemptCount(stage Stage) int {
	if s.Attempts == nil {
		return 0
	}
	return s.Attempts[stage]
}
