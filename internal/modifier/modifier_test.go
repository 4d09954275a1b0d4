package modifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"songforge/internal/config"
	"songforge/internal/logging"
	"songforge/internal/services"
	"songforge/internal/services/ffmpeg"
	"songforge/internal/songs"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	return &cfg
}

func writeStem(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "no_vocals.wav")
	if err := os.WriteFile(path, []byte("stem"), 0o644); err != nil {
		t.Fatalf("write stem: %v", err)
	}
	return path
}

func TestBuildOptionsAppliesDirection(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modification.PitchShiftSemitones = 0.5
	cfg.Modification.TempoChangePercent = 2

	m := NewWithService(cfg, logging.NewNop(), ffmpeg.New("", ""))

	m.WithDirection(1)
	opts := m.buildOptions()
	if opts.PitchSemitones != 0.5 || opts.TempoFactor != 1.02 {
		t.Fatalf("up direction opts = %+v", opts)
	}

	m.WithDirection(-1)
	opts = m.buildOptions()
	if opts.PitchSemitones != -0.5 || opts.TempoFactor != 0.98 {
		t.Fatalf("down direction opts = %+v", opts)
	}
}

func TestBuildOptionsClampsExtremes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modification.PitchShiftSemitones = 5
	cfg.Modification.TempoChangePercent = 10

	m := NewWithService(cfg, logging.NewNop(), ffmpeg.New("", ""))
	m.WithDirection(1)

	opts := m.buildOptions()
	if opts.PitchSemitones != 1 {
		t.Fatalf("pitch not clamped: %v", opts.PitchSemitones)
	}
	if opts.TempoFactor != 1.03 {
		t.Fatalf("tempo not clamped: %v", opts.TempoFactor)
	}

	m.WithDirection(-1)
	opts = m.buildOptions()
	if opts.PitchSemitones != -1 || opts.TempoFactor != 0.97 {
		t.Fatalf("lower clamp opts = %+v", opts)
	}
}

func TestBuildOptionsSkipsZeroMagnitudes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modification.PitchShiftSemitones = 0
	cfg.Modification.TempoChangePercent = 0
	cfg.Modification.ApplyFilter = false

	m := NewWithService(cfg, logging.NewNop(), ffmpeg.New("", ""))
	m.WithDirection(1)

	opts := m.buildOptions()
	if opts.PitchSemitones != 0 || opts.TempoFactor != 0 || opts.ApplyFilter {
		t.Fatalf("opts = %+v", opts)
	}
}

func TestExecuteWritesModifiedAudio(t *testing.T) {
	cfg := testConfig(t)
	stem := writeStem(t, t.TempDir())

	service := ffmpeg.New("", "")
	service.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		return os.WriteFile(args[len(args)-1], []byte("modified"), 0o644)
	})

	m := NewWithService(cfg, logging.NewNop(), service)
	m.WithDirection(1)

	song := &songs.Song{VideoID: "abc123", Artifacts: songs.Artifacts{InstrumentalPath: stem}}
	success, err := m.Execute(context.Background(), song)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := filepath.Join(cfg.Paths.WorkDir, "abc123", "instrumental_modified.wav")
	if success.Artifacts.ModifiedPath != want {
		t.Fatalf("modified path = %q, want %q", success.Artifacts.ModifiedPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("modified file missing: %v", err)
	}
}

func TestExecutePassesThroughWhenDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modification.Enabled = false

	service := ffmpeg.New("", "")
	ran := false
	service.WithCommandRunner(func(context.Context, string, ...string) error {
		ran = true
		return nil
	})

	m := NewWithService(cfg, logging.NewNop(), service)
	song := &songs.Song{VideoID: "abc123", Artifacts: songs.Artifacts{InstrumentalPath: "/stems/no_vocals.wav"}}
	success, err := m.Execute(context.Background(), song)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if success.Artifacts.ModifiedPath != "/stems/no_vocals.wav" {
		t.Fatalf("passthrough path = %q", success.Artifacts.ModifiedPath)
	}
	if ran {
		t.Fatal("ffmpeg ran with modification disabled")
	}
}

func TestPrepareRequiresInstrumental(t *testing.T) {
	m := NewWithService(testConfig(t), logging.NewNop(), ffmpeg.New("", ""))
	err := m.Prepare(context.Background(), &songs.Song{VideoID: "abc123"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
