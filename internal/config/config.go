package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DownloadDir    string `toml:"download_dir"`
	WorkDir        string `toml:"work_dir"`
	VideoDir       string `toml:"video_dir"`
	BackgroundsDir string `toml:"backgrounds_dir"`
	LogDir         string `toml:"log_dir"`
}

// YouTube contains configuration for the YouTube Data API.
type YouTube struct {
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Region     string `toml:"region"`
	CategoryID string `toml:"category_id"`
	MaxResults int    `toml:"max_results"`
}

// Separation contains configuration for vocal/instrumental separation.
type Separation struct {
	Binary string `toml:"binary"`
	Model  string `toml:"model"`
}

// Modification contains configuration for the subtle instrumental rework.
type Modification struct {
	Enabled             bool    `toml:"enabled"`
	PitchShiftSemitones float64 `toml:"pitch_shift_semitones"`
	TempoChangePercent  float64 `toml:"tempo_change_percent"`
	ApplyFilter         bool    `toml:"apply_filter"`
}

// Transcription contains configuration for lyric transcription.
type Transcription struct {
	Binary   string `toml:"binary"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// Video contains configuration for karaoke video rendering.
type Video struct {
	Resolution       string `toml:"resolution"`
	FPS              int    `toml:"fps"`
	FontName         string `toml:"font_name"`
	FontSize         int    `toml:"font_size"`
	PrimaryColor     string `toml:"primary_color"`
	HighlightColor   string `toml:"highlight_color"`
	BorderSize       int    `toml:"border_size"`
	ShadowDepth      int    `toml:"shadow_depth"`
	FadeInMs         int    `toml:"fade_in_ms"`
	FadeOutMs        int    `toml:"fade_out_ms"`
	VisualizerType   string `toml:"visualizer_type"`
	VisualizerColor  string `toml:"visualizer_color"`
	VisualizerHeight int    `toml:"visualizer_height"`
	BackgroundType   string `toml:"background_type"`
}

// Upload contains configuration for publishing finished videos.
type Upload struct {
	Enabled       bool     `toml:"enabled"`
	PrivacyStatus string   `toml:"privacy_status"`
	CategoryID    string   `toml:"category_id"`
	Tags          []string `toml:"tags"`
	AccessToken   string   `toml:"access_token"`
}

// Workflow contains pipeline timing, retry, and concurrency settings.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	Workers            int `toml:"workers"`
	MaxAttempts        int `toml:"max_attempts"`
	// StageMaxAttempts overrides MaxAttempts per stage name.
	StageMaxAttempts map[string]int `toml:"stage_max_attempts"`
	// Per-stage timeouts in seconds; zero means no deadline.
	DownloadTimeout      int `toml:"download_timeout"`
	SeparationTimeout    int `toml:"separation_timeout"`
	ModificationTimeout  int `toml:"modification_timeout"`
	TranscriptionTimeout int `toml:"transcription_timeout"`
	RenderTimeout        int `toml:"render_timeout"`
	UploadTimeout        int `toml:"upload_timeout"`
	RetryBackoffBase     int `toml:"retry_backoff_base"`
	RetryBackoffMax      int `toml:"retry_backoff_max"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for songforge.
type Config struct {
	Paths         Paths         `toml:"paths"`
	YouTube       YouTube       `toml:"youtube"`
	Separation    Separation    `toml:"separation"`
	Modification  Modification  `toml:"modification"`
	Transcription Transcription `toml:"transcription"`
	Video         Video         `toml:"video"`
	Upload        Upload        `toml:"upload"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/songforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("songforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.Paths.DownloadDir,
		c.Paths.WorkDir,
		c.Paths.VideoDir,
		c.Paths.BackgroundsDir,
		c.Paths.LogDir,
	} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media verification.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// StageMaxAttempts resolves the attempt ceiling for a stage name.
func (c *Config) StageMaxAttempts(stage string) int {
	if n, ok := c.Workflow.StageMaxAttempts[stage]; ok && n > 0 {
		return n
	}
	if c.Workflow.MaxAttempts > 0 {
		return c.Workflow.MaxAttempts
	}
	return 1
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
