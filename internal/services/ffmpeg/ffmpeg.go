// Package ffmpeg wraps the ffmpeg and ffprobe binaries for audio
// modification, background generation, and karaoke video rendering.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"songforge/internal/services"
)

const defaultSampleRate = 44100

// Service shells out to ffmpeg and ffprobe.
type Service struct {
	ffmpegBinary  string
	ffprobeBinary string
	commandRunner func(ctx context.Context, name string, args ...string) error
	outputRunner  func(ctx context.Context, name string, args ...string) (string, error)
}

// New creates an ffmpeg service. Empty binary names fall back to PATH lookup
// defaults.
func New(ffmpegBinary, ffprobeBinary string) *Service {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	if ffprobeBinary == "" {
		ffprobeBinary = "ffprobe"
	}
	return &Service{ffmpegBinary: ffmpegBinary, ffprobeBinary: ffprobeBinary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// WithOutputRunner sets a custom probe runner (for testing).
func (s *Service) WithOutputRunner(runner func(ctx context.Context, name string, args ...string) (string, error)) {
	s.outputRunner = runner
}

// Available reports whether both binaries can be found on PATH.
func (s *Service) Available() error {
	for _, binary := range []string{s.ffmpegBinary, s.ffprobeBinary} {
		if _, err := exec.LookPath(binary); err != nil {
			return services.Wrap(services.ErrConfiguration, "rendering", "lookup", fmt.Sprintf("%s not found on PATH", binary), err)
		}
	}
	return nil
}

// ModifyOptions describes the subtle transformations applied to an
// instrumental track. PitchSemitones and TempoFactor are signed and already
// clamped by the caller.
type ModifyOptions struct {
	PitchSemitones float64
	TempoFactor    float64
	ApplyFilter    bool
	SampleRate     int
}

// ModifyAudio re-encodes input with a pitch shift, tempo change, gentle
// low-pass coloring, and loudness normalization.
func (s *Service) ModifyAudio(ctx context.Context, input, output string, opts ModifyOptions) error {
	const stage = "modifying"
	if _, err := os.Stat(input); err != nil {
		return services.Wrap(services.ErrValidation, stage, "modify", "input audio is missing", err)
	}

	args := buildModifyArgs(input, output, opts)
	if err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, stage, "modify", "ffmpeg audio modification failed", err)
	}
	if info, err := os.Stat(output); err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, stage, "modify", "modified audio was not produced", err)
	}
	return nil
}

func buildModifyArgs(input, output string, opts ModifyOptions) []string {
	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	var filters []string
	if opts.PitchSemitones != 0 {
		// Resample trick: raising the sample rate shifts pitch, then
		// resampling back restores the tempo.
		factor := math.Pow(2, opts.PitchSemitones/12)
		filters = append(filters,
			fmt.Sprintf("asetrate=%d", int(math.Round(float64(sampleRate)*factor))),
			fmt.Sprintf("aresample=%d", sampleRate),
		)
	}
	if opts.TempoFactor > 0 && opts.TempoFactor != 1 {
		filters = append(filters, fmt.Sprintf("atempo=%.4f", opts.TempoFactor))
	}
	if opts.ApplyFilter {
		filters = append(filters, "lowpass=f=15000")
	}
	filters = append(filters, "loudnorm=I=-14:TP=-1.0:LRA=11")

	return []string{
		"-y",
		"-i", input,
		"-af", strings.Join(filters, ","),
		"-ar", strconv.Itoa(sampleRate),
		output,
	}
}

// CreateGradientBackground writes a blended two-tone gradient still at the
// given resolution.
func (s *Service) CreateGradientBackground(ctx context.Context, output string, width, height int) error {
	size := fmt.Sprintf("%dx%d", width, height)
	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", "color=c=#1a1a2e:s=" + size + ":d=1",
		"-f", "lavfi",
		"-i", "color=c=#16213e:s=" + size + ":d=1",
		"-filter_complex", "[0:v][1:v]blend=all_mode=average:all_opacity=0.5",
		"-frames:v", "1",
		output,
	}
	if err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "rendering", "background", "gradient background generation failed", err)
	}
	return nil
}

// RenderOptions describes one karaoke render.
type RenderOptions struct {
	AudioPath        string
	SubtitlePath     string
	BackgroundPath   string
	OutputPath       string
	Width            int
	Height           int
	FPS              int
	VisualizerType   string
	VisualizerColor  string
	VisualizerHeight int
	DurationSeconds  float64
}

// RenderKaraoke composes the background, audio visualizer, and burned-in
// subtitles into the final video.
func (s *Service) RenderKaraoke(ctx context.Context, opts RenderOptions) error {
	const stage = "rendering"
	for name, path := range map[string]string{
		"audio":      opts.AudioPath,
		"subtitles":  opts.SubtitlePath,
		"background": opts.BackgroundPath,
	} {
		if _, err := os.Stat(path); err != nil {
			return services.Wrap(services.ErrValidation, stage, "render", name+" input is missing", err)
		}
	}

	args := buildRenderArgs(opts)
	if err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, stage, "render", "ffmpeg render failed", err)
	}
	if info, err := os.Stat(opts.OutputPath); err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, stage, "render", "output video was not produced", err)
	}
	return nil
}

func buildRenderArgs(opts RenderOptions) []string {
	visHeight := opts.VisualizerHeight
	if visHeight <= 0 {
		visHeight = 200
	}
	visColor := opts.VisualizerColor
	if visColor == "" {
		visColor = "cyan"
	}
	visY := opts.Height - visHeight - 20

	backgroundVideo := isVideoBackground(opts.BackgroundPath)

	var filter strings.Builder
	if backgroundVideo {
		fmt.Fprintf(&filter, "[1:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d[bg];",
			opts.Width, opts.Height, opts.Width, opts.Height)
	} else {
		fmt.Fprintf(&filter, "[1:v]scale=%d:%d[bg];", opts.Width, opts.Height)
	}

	switch opts.VisualizerType {
	case "spectrum":
		fmt.Fprintf(&filter, "[0:a]showfreqs=s=%dx%d:mode=bar:colors=%s[waves];", opts.Width, visHeight, visColor)
		fmt.Fprintf(&filter, "[bg][waves]overlay=0:%d[canvas];", visY)
	case "none":
		filter.WriteString("[bg]null[canvas];")
	default:
		fmt.Fprintf(&filter, "[0:a]showwaves=s=%dx%d:mode=cline:colors=%s:scale=sqrt[waves];", opts.Width, visHeight, visColor)
		fmt.Fprintf(&filter, "[bg][waves]overlay=0:%d[canvas];", visY)
	}
	fmt.Fprintf(&filter, "[canvas]ass='%s'[out]", escapeFilterPath(opts.SubtitlePath))

	args := []string{
		"-y",
		"-i", opts.AudioPath,
	}
	if backgroundVideo {
		args = append(args, "-stream_loop", "-1", "-i", opts.BackgroundPath)
	} else {
		args = append(args, "-loop", "1", "-i", opts.BackgroundPath)
	}
	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-map", "0:a",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", strconv.Itoa(defaultSampleRate),
	)
	if opts.DurationSeconds > 0 {
		args = append(args, "-t", strconv.FormatFloat(opts.DurationSeconds, 'f', 3, 64))
	}
	args = append(args,
		"-r", strconv.Itoa(opts.FPS),
		"-pix_fmt", "yuv420p",
		opts.OutputPath,
	)
	return args
}

func isVideoBackground(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range []string{".mp4", ".mov", ".avi", ".mkv"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// escapeFilterPath quotes characters that break ffmpeg filter parsing.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(`'`, `\'`, `:`, `\:`)
	return replacer.Replace(path)
}

// ProbeDuration returns a media file's duration in seconds.
func (s *Service) ProbeDuration(ctx context.Context, path string) (float64, error) {
	output, err := s.output(ctx, s.ffprobeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "rendering", "probe", "ffprobe duration failed", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(output), 64)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "rendering", "probe", "parse ffprobe duration", err)
	}
	return duration, nil
}

// VideoInfo holds the verified properties of a rendered video.
type VideoInfo struct {
	Width    int
	Height   int
	Duration float64
}

type probeStream struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Duration string `json:"duration"`
}

type probePayload struct {
	Streams []probeStream `json:"streams"`
}

// VerifyVideo checks that the rendered file has a decodable video stream and
// returns its properties.
func (s *Service) VerifyVideo(ctx context.Context, path string) (VideoInfo, error) {
	var info VideoInfo
	output, err := s.output(ctx, s.ffprobeBinary,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return info, services.Wrap(services.ErrExternalTool, "rendering", "verify", "ffprobe failed", err)
	}
	var payload probePayload
	if err := json.Unmarshal([]byte(output), &payload); err != nil {
		return info, services.Wrap(services.ErrExternalTool, "rendering", "verify", "parse ffprobe json", err)
	}
	if len(payload.Streams) == 0 {
		return info, services.Wrap(services.ErrExternalTool, "rendering", "verify", "no video stream found", nil)
	}
	stream := payload.Streams[0]
	info.Width = stream.Width
	info.Height = stream.Height
	if stream.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(stream.Duration, 64)
	}
	return info, nil
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

func (s *Service) output(ctx context.Context, name string, args ...string) (string, error) {
	if s.outputRunner != nil {
		return s.outputRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(output), nil
}
