// Package subtitles converts transcription output into timed lyric files:
// SRT for the plain transcript and ASS with per-word karaoke highlighting
// for the video render.
package subtitles
