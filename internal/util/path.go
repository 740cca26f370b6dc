package util

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// BuildObjectKey constructs a normalized backup key: <prefix>/<kind>/<timestamp>_<kind>.<extension>.
func BuildObjectKey(prefix, kind string, when time.Time, extension string) string {
	parts := []string{}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, kind)
	suffix := fmt.Sprintf("%s_%s", when.UTC().Format("20060102T150405.000Z"), kind)
	if extension = strings.TrimPrefix(extension, "."); extension != "" {
		suffix = suffix + "." + extension
	}
	parts = append(parts, suffix)
	return path.Join(parts...)
}

// BuildPrefix builds the prefix for listing backups, optionally narrowed to one kind.
func BuildPrefix(prefix, kind string) string {
	parts := []string{}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if kind != "" {
		parts = append(parts, kind)
	}
	return path.Join(parts...)
}
