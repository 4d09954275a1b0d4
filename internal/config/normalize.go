package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	pathFields := []struct {
		name  string
		value *string
	}{
		{"download_dir", &c.Paths.DownloadDir},
		{"work_dir", &c.Paths.WorkDir},
		{"video_dir", &c.Paths.VideoDir},
		{"backgrounds_dir", &c.Paths.BackgroundsDir},
		{"log_dir", &c.Paths.LogDir},
	}
	for _, field := range pathFields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("normalize %s: %w", field.name, err)
		}
		*field.value = expanded
	}

	c.YouTube.APIKey = strings.TrimSpace(c.YouTube.APIKey)
	c.YouTube.BaseURL = strings.TrimRight(strings.TrimSpace(c.YouTube.BaseURL), "/")
	c.YouTube.Region = strings.ToUpper(strings.TrimSpace(c.YouTube.Region))
	c.YouTube.CategoryID = strings.TrimSpace(c.YouTube.CategoryID)

	c.Separation.Binary = strings.TrimSpace(c.Separation.Binary)
	c.Separation.Model = strings.TrimSpace(c.Separation.Model)
	c.Transcription.Binary = strings.TrimSpace(c.Transcription.Binary)
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))

	c.Upload.PrivacyStatus = strings.ToLower(strings.TrimSpace(c.Upload.PrivacyStatus))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = 1
	}
	return nil
}
