package subtitles

import (
	"fmt"
	"os"
	"strings"
)

// ValidateASS checks a generated ASS file for structural problems. An empty
// slice means validation passed.
func ValidateASS(path string) []string {
	var issues []string

	data, err := os.ReadFile(path)
	if err != nil {
		return append(issues, fmt.Sprintf("read_error: %v", err))
	}
	content := string(data)

	for _, section := range []string{"[Script Info]", "[V4+ Styles]", "[Events]"} {
		if !strings.Contains(content, section) {
			issues = append(issues, "missing_section: "+section)
		}
	}
	if !strings.Contains(content, "Dialogue:") {
		issues = append(issues, "no_dialogue_lines")
	}
	return issues
}

// ValidateSRT checks an SRT file has at least one parsable cue.
func ValidateSRT(path string) []string {
	var issues []string

	cues, err := ParseSRT(path)
	if err != nil {
		return append(issues, fmt.Sprintf("read_error: %v", err))
	}
	if len(cues) == 0 {
		issues = append(issues, "empty_subtitle_file")
	}
	for _, cue := range cues {
		if cue.End < cue.Start {
			issues = append(issues, fmt.Sprintf("negative_duration_cue: %d", cue.Index))
		}
	}
	return issues
}
