package domain

import (
	"net/url"
	"strings"
)

const (
	// TitlePlaceholder replaces every character that cannot appear in a file name
	TitlePlaceholder = '_'

	// MarkerPrefix starts the name of the transient marker file written while a job runs
	MarkerPrefix = "downloading_"

	// AudioArtifactPrefix and VideoArtifactPrefix start the fixed temporary file names
	AudioArtifactPrefix = "audio."
	VideoArtifactPrefix = "video."

	fallbackTitle = "untitled"
)

// reservedStems are the names the workspace claims for its own files. A title that
// would produce one of them is prefixed so cleanup and artifact lookup never see it.
var reservedStems = []string{"audio", "video"}

// SanitizeTitle turns a media title into a file-system-safe base name.
// Each of \ / : * ? " < > | and every control character becomes '_'.
// Distinct titles that differ only in which illegal character they use map to the
// same name ("a:b" and "a?b" both become "a_b").
// Names that clash with the temporary artifacts or the marker file, compared
// case-insensitively, get a leading '_' ("audio" becomes "_audio").
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.TrimSpace(title) {
		switch {
		case strings.ContainsRune(`\/:*?"<>|`, r):
			b.WriteRune(TitlePlaceholder)
		case r < 0x20 || r == 0x7f:
			b.WriteRune(TitlePlaceholder)
		default:
			b.WriteRune(r)
		}
	}

	// Windows refuses names ending in a dot or a space
	name := strings.TrimRight(b.String(), ". ")
	if name == "" {
		return fallbackTitle
	}
	if isReserved(name) {
		return string(TitlePlaceholder) + name
	}
	return name
}

func isReserved(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, MarkerPrefix) {
		return true
	}
	for _, stem := range reservedStems {
		if lower == stem || strings.HasPrefix(lower, stem+".") {
			return true
		}
	}
	return false
}

// OutputFileName returns the final artifact name for a title and container extension
func OutputFileName(title, container string) string {
	container = strings.TrimPrefix(container, ".")
	return SanitizeTitle(title) + "." + container
}

// MarkerID extracts the identifier used to name the marker file: the text after the
// last '=' (the video id of a watch URL), otherwise the last path segment.
func MarkerID(rawURL string) string {
	id := ""
	if i := strings.LastIndex(rawURL, "="); i >= 0 && i < len(rawURL)-1 {
		id = rawURL[i+1:]
	} else if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		id = segments[len(segments)-1]
	}

	if j := strings.IndexAny(id, "&#"); j >= 0 {
		id = id[:j]
	}
	if id == "" {
		return "unknown"
	}
	return SanitizeTitle(id)
}

// MarkerFileName returns the marker file name for a URL
func MarkerFileName(rawURL string) string {
	return MarkerPrefix + MarkerID(rawURL) + ".txt"
}
