package config

const (
	defaultDownloadDir    = "~/.local/share/songforge/downloads"
	defaultWorkDir        = "~/.local/share/songforge/work"
	defaultVideoDir       = "~/.local/share/songforge/videos"
	defaultBackgroundsDir = "~/.local/share/songforge/backgrounds"
	defaultLogDir         = "~/.local/share/songforge/logs"

	defaultYouTubeBaseURL    = "https://www.googleapis.com/youtube/v3"
	defaultYouTubeRegion     = "US"
	defaultYouTubeCategoryID = "10" // Music
	defaultYouTubeMaxResults = 10

	defaultSeparationBinary = "demucs"
	defaultSeparationModel  = "htdemucs"

	defaultTranscriptionBinary   = "whisper"
	defaultTranscriptionModel    = "small"
	defaultTranscriptionLanguage = "en"

	defaultResolution       = "1920x1080"
	defaultFPS              = 30
	defaultFontName         = "Arial"
	defaultFontSize         = 48
	defaultPrimaryColor     = "&H00FFFFFF"
	defaultHighlightColor   = "&H0000D7FF"
	defaultBorderSize       = 3
	defaultShadowDepth      = 2
	defaultFadeMs           = 200
	defaultVisualizerType   = "waveform"
	defaultVisualizerColor  = "cyan"
	defaultVisualizerHeight = 200
	defaultBackgroundType   = "gradient"

	defaultUploadPrivacy = "private"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir:    defaultDownloadDir,
			WorkDir:        defaultWorkDir,
			VideoDir:       defaultVideoDir,
			BackgroundsDir: defaultBackgroundsDir,
			LogDir:         defaultLogDir,
		},
		YouTube: YouTube{
			BaseURL:    defaultYouTubeBaseURL,
			Region:     defaultYouTubeRegion,
			CategoryID: defaultYouTubeCategoryID,
			MaxResults: defaultYouTubeMaxResults,
		},
		Separation: Separation{
			Binary: defaultSeparationBinary,
			Model:  defaultSeparationModel,
		},
		Modification: Modification{
			Enabled:             true,
			PitchShiftSemitones: 0.5,
			TempoChangePercent:  2,
			ApplyFilter:         true,
		},
		Transcription: Transcription{
			Binary:   defaultTranscriptionBinary,
			Model:    defaultTranscriptionModel,
			Language: defaultTranscriptionLanguage,
		},
		Video: Video{
			Resolution:       defaultResolution,
			FPS:              defaultFPS,
			FontName:         defaultFontName,
			FontSize:         defaultFontSize,
			PrimaryColor:     defaultPrimaryColor,
			HighlightColor:   defaultHighlightColor,
			BorderSize:       defaultBorderSize,
			ShadowDepth:      defaultShadowDepth,
			FadeInMs:         defaultFadeMs,
			FadeOutMs:        defaultFadeMs,
			VisualizerType:   defaultVisualizerType,
			VisualizerColor:  defaultVisualizerColor,
			VisualizerHeight: defaultVisualizerHeight,
			BackgroundType:   defaultBackgroundType,
		},
		Upload: Upload{
			PrivacyStatus: defaultUploadPrivacy,
			CategoryID:    defaultYouTubeCategoryID,
			Tags:          []string{"karaoke", "instrumental", "lyrics"},
		},
		Workflow: Workflow{
			QueuePollInterval:    5,
			ErrorRetryInterval:   10,
			Workers:              1,
			MaxAttempts:          3,
			DownloadTimeout:      900,
			SeparationTimeout:    1800,
			ModificationTimeout:  600,
			TranscriptionTimeout: 1800,
			RenderTimeout:        1800,
			UploadTimeout:        1800,
			RetryBackoffBase:     30,
			RetryBackoffMax:      1800,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
