package subtitles

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Cue is one timed block of lyric text.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// WriteSRT writes cues to path in SRT format, renumbering sequentially.
func WriteSRT(path string, cues []Cue) error {
	if len(cues) == 0 {
		return fmt.Errorf("write srt: no cues")
	}
	var builder strings.Builder
	for i, cue := range cues {
		fmt.Fprintf(&builder, "%d\n", i+1)
		fmt.Fprintf(&builder, "%s --> %s\n", formatSRTTime(cue.Start), formatSRTTime(cue.End))
		fmt.Fprintf(&builder, "%s\n\n", strings.TrimSpace(cue.Text))
	}
	if err := os.WriteFile(path, []byte(builder.String()), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

// ParseSRT reads an SRT file into cues. Malformed blocks are skipped.
func ParseSRT(path string) ([]Cue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	content := strings.ReplaceAll(strings.TrimSpace(string(data)), "\r\n", "\n")
	if content == "" {
		return nil, nil
	}

	var cues []Cue
	for _, block := range strings.Split(content, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}
		timingLine := lines[1]
		parts := strings.Split(timingLine, "-->")
		if len(parts) != 2 {
			continue
		}
		start, errStart := parseSRTTimestamp(parts[0])
		end, errEnd := parseSRTTimestamp(parts[1])
		if errStart != nil || errEnd != nil {
			continue
		}
		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: start,
			End:   end,
			Text:  strings.Join(lines[2:], " "),
		})
	}
	return cues, nil
}

func formatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	millis := int((seconds - float64(total)) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", total/3600, (total%3600)/60, total%60, millis)
}

func parseSRTTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}
