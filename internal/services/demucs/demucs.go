// Package demucs wraps the demucs source separator to split a song into
// vocal and instrumental stems.
package demucs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"songforge/internal/services"
)

const stageName = "separating"

// Result holds the stem paths produced by a separation run.
type Result struct {
	VocalsPath       string
	InstrumentalPath string
}

// Service runs demucs in two-stems mode.
type Service struct {
	binary        string
	model         string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// New creates a separation service. Empty binary or model fall back to the
// demucs defaults.
func New(binary, model string) *Service {
	if binary == "" {
		binary = "demucs"
	}
	if model == "" {
		model = "htdemucs"
	}
	return &Service{binary: binary, model: model}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Binary returns the configured executable name.
func (s *Service) Binary() string {
	return s.binary
}

// Available reports whether the demucs binary can be found on PATH.
func (s *Service) Available() error {
	if _, err := exec.LookPath(s.binary); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "lookup", fmt.Sprintf("%s not found on PATH", s.binary), err)
	}
	return nil
}

// Separate splits audioPath into vocals and instrumental stems under
// outputDir and returns their locations. Demucs writes stems to
// <outputDir>/<model>/<track>/ with fixed names in two-stems mode.
func (s *Service) Separate(ctx context.Context, audioPath, outputDir string) (Result, error) {
	var result Result
	if strings.TrimSpace(audioPath) == "" {
		return result, services.Wrap(services.ErrValidation, stageName, "separate", "audio path is required", nil)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return result, services.Wrap(services.ErrValidation, stageName, "separate", "input audio is missing", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrConfiguration, stageName, "separate", "create output directory", err)
	}

	args := s.buildArgs(audioPath, outputDir)
	if err := s.run(ctx, s.binary, args...); err != nil {
		return result, services.Wrap(services.ErrExternalTool, stageName, "separate", "demucs failed", err)
	}

	track := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	stemDir := filepath.Join(outputDir, s.model, track)
	result.VocalsPath = filepath.Join(stemDir, "vocals.wav")
	result.InstrumentalPath = filepath.Join(stemDir, "no_vocals.wav")

	for _, stem := range []string{result.VocalsPath, result.InstrumentalPath} {
		if _, err := os.Stat(stem); err != nil {
			return Result{}, services.Wrap(services.ErrExternalTool, stageName, "separate", "expected stem missing: "+filepath.Base(stem), err)
		}
	}
	return result, nil
}

func (s *Service) buildArgs(audioPath, outputDir string) []string {
	return []string{
		"--two-stems", "vocals",
		"-n", s.model,
		"-o", outputDir,
		audioPath,
	}
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
