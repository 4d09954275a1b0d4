// Package whisper wraps the whisper CLI to transcribe separated vocal tracks.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"songforge/internal/services"
)

const stageName = "transcribing"

// Segment is one timed piece of transcribed text.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperPayload struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Service provides vocal transcription via the whisper CLI.
type Service struct {
	binary        string
	model         string
	language      string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// New creates a transcription service. Empty binary or model fall back to
// whisper defaults.
func New(binary, model, language string) *Service {
	if binary == "" {
		binary = "whisper"
	}
	if model == "" {
		model = "small"
	}
	return &Service{binary: binary, model: model, language: language}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.model
}

// Available reports whether the whisper binary can be found on PATH.
func (s *Service) Available() error {
	if _, err := exec.LookPath(s.binary); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "lookup", fmt.Sprintf("%s not found on PATH", s.binary), err)
	}
	return nil
}

// Transcribe runs whisper over a vocal track and returns its timed segments.
// Whisper writes <outputDir>/<track>.json which is parsed for segments.
func (s *Service) Transcribe(ctx context.Context, audioPath, outputDir string) ([]Segment, error) {
	if strings.TrimSpace(audioPath) == "" {
		return nil, services.Wrap(services.ErrValidation, stageName, "transcribe", "audio path is required", nil)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "transcribe", "vocal track is missing", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "transcribe", "create output directory", err)
	}

	args := s.buildArgs(audioPath, outputDir)
	if err := s.run(ctx, s.binary, args...); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "transcribe", "whisper failed", err)
	}

	track := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outputDir, track+".json")
	segments, err := LoadSegments(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "transcribe", "load whisper output", err)
	}
	segments = trimSegments(segments)
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, stageName, "transcribe", "no lyrics detected in vocal track", nil)
	}
	return segments, nil
}

func (s *Service) buildArgs(audioPath, outputDir string) []string {
	args := []string{
		audioPath,
		"--model", s.model,
		"--task", "transcribe",
		"--output_format", "json",
		"--output_dir", outputDir,
		"--verbose", "False",
	}
	if s.language != "" {
		args = append(args, "--language", s.language)
	}
	return args
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// LoadSegments loads segments from a whisper JSON output file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisper json: %w", err)
	}
	return payload.Segments, nil
}

func trimSegments(segments []Segment) []Segment {
	kept := segments[:0]
	for _, segment := range segments {
		segment.Text = strings.TrimSpace(segment.Text)
		if segment.Text == "" {
			continue
		}
		kept = append(kept, segment)
	}
	return kept
}
