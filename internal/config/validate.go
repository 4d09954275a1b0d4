package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var validPrivacyStatuses = map[string]struct{}{
	"public":   {},
	"unlisted": {},
	"private":  {},
}

// Validate verifies configuration invariants before the pipeline starts.
func (c *Config) Validate() error {
	var problems []string

	if c.Paths.WorkDir == "" {
		problems = append(problems, "paths.work_dir must be set")
	}
	if c.Paths.DownloadDir == "" {
		problems = append(problems, "paths.download_dir must be set")
	}
	if c.Paths.VideoDir == "" {
		problems = append(problems, "paths.video_dir must be set")
	}

	if _, _, err := ParseResolution(c.Video.Resolution); err != nil {
		problems = append(problems, fmt.Sprintf("video.resolution: %v", err))
	}
	if c.Video.FPS <= 0 {
		problems = append(problems, "video.fps must be positive")
	}
	switch c.Video.VisualizerType {
	case "waveform", "spectrum", "none":
	default:
		problems = append(problems, fmt.Sprintf("video.visualizer_type: unsupported value %q", c.Video.VisualizerType))
	}

	if c.Modification.PitchShiftSemitones < 0 || c.Modification.PitchShiftSemitones > 1 {
		problems = append(problems, "modification.pitch_shift_semitones must be within [0, 1]")
	}
	if c.Modification.TempoChangePercent < 0 || c.Modification.TempoChangePercent > 3 {
		problems = append(problems, "modification.tempo_change_percent must be within [0, 3]")
	}

	if _, ok := validPrivacyStatuses[c.Upload.PrivacyStatus]; !ok {
		problems = append(problems, fmt.Sprintf("upload.privacy_status: unsupported value %q", c.Upload.PrivacyStatus))
	}
	if c.Upload.Enabled && strings.TrimSpace(c.Upload.AccessToken) == "" {
		problems = append(problems, "upload.access_token must be set when upload is enabled")
	}

	if c.Workflow.MaxAttempts <= 0 {
		problems = append(problems, "workflow.max_attempts must be positive")
	}
	for stage, n := range c.Workflow.StageMaxAttempts {
		if n <= 0 {
			problems = append(problems, fmt.Sprintf("workflow.stage_max_attempts[%s] must be positive", stage))
		}
	}
	if c.Workflow.QueuePollInterval <= 0 {
		problems = append(problems, "workflow.queue_poll_interval must be positive")
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// ParseResolution splits a WIDTHxHEIGHT string into its components.
func ParseResolution(value string) (int, int, error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(value)), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected WIDTHxHEIGHT, got %q", value)
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", value)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", value)
	}
	return width, height, nil
}
