// Package transcripts imports voice-grounding transcripts for analyst personas
// and picks the excerpts a viewpoint prompt should quote from.
package transcripts

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	videoIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/shorts/|youtube\.com/live/)([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/watch\?.*v=([a-zA-Z0-9_-]{11})`),
	}
	bareVideoID = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

	// [00:01:02], [1:02], 00:01:02.500 --> 00:01:05.000 and similar cue markers
	timestampPattern = regexp.MustCompile(`\[\d{1,2}(?::\d{2}){1,2}\]|\d{1,2}(?::\d{2}){1,2}(?:[.,]\d{1,3})?\s*-->\s*\d{1,2}(?::\d{2}){1,2}(?:[.,]\d{1,3})?`)
	cueNumberLine    = regexp.MustCompile(`^\d+$`)
	spacePattern     = regexp.MustCompile(`\s+`)
)

// ExtractVideoID returns the 11-character YouTube id from a URL or bare id.
func ExtractVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if bareVideoID.MatchString(input) {
		return input, nil
	}
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(input); len(m) > 1 {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("could not extract video ID from %q", input)
}

// IsYouTubeURL reports whether urlStr points at a YouTube video.
func IsYouTubeURL(urlStr string) bool {
	for _, re := range videoIDPatterns {
		if re.MatchString(urlStr) {
			return true
		}
	}
	return false
}

// Clean strips timestamps, subtitle cue numbers and the WEBVTT header, then
// joins the remaining lines into single-spaced prose.
func Clean(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "WEBVTT" || cueNumberLine.MatchString(line) {
			continue
		}
		line = strings.TrimSpace(timestampPattern.ReplaceAllString(line, ""))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(spacePattern.ReplaceAllString(strings.Join(kept, " "), " "))
}
