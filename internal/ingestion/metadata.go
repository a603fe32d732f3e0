package ingestion

import (
	"net/url"
	"path/filepath"
	"strings"
)

// ExtractTitle returns a human-readable title for a document: the first
// markdown heading when one exists, otherwise a name derived from the
// source location (file base name without extension, or the last URL path
// segment).
func ExtractTitle(content, source string) string {
	if title := firstHeading(content); title != "" {
		return title
	}
	return titleFromSource(source)
}

// firstHeading scans for the first markdown ATX heading and returns its text.
func firstHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		text := strings.TrimLeft(trimmed, "#")
		// Require at least one space after the marker, as markdown does.
		if !strings.HasPrefix(text, " ") && !strings.HasPrefix(text, "\t") {
			continue
		}
		if title := strings.TrimSpace(text); title != "" {
			return title
		}
	}
	return ""
}

// titleFromSource derives a title from a path or URL when the content holds
// no heading.
func titleFromSource(source string) string {
	name := source
	if IsURL(source) {
		if parsed, err := url.Parse(source); err == nil && parsed.Path != "" {
			name = parsed.Path
		}
	}
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	if base == "" || base == "." || base == "/" {
		return source
	}
	return base
}

// IsURL reports whether source is an HTTP(S) URL.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
