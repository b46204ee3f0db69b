// Package fsutil names voice artifacts on disk and formats the run summary of
// the outreach binary.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// AudioExt is the extension of every synthesized artifact.
const AudioExt = ".mp3"

const (
	outputDirPermissions = 0o750
	filenameReplacement  = '_'
	// Characters rejected by at least one common filesystem.
	unsafeFilenameChars = `<>:"/\|?*`
	durationPrecision   = 100 * time.Millisecond
	sizeStep            = 1024
)

var sizeUnits = []string{"KB", "MB", "GB"}

// EnsureDir creates the output directory and its parents.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, outputDirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// EnsureParentDir creates the directory that will hold path.
func EnsureParentDir(path string) error {
	return EnsureDir(filepath.Dir(path))
}

// IsAudioFile reports whether filename carries the artifact extension.
func IsAudioFile(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), AudioExt)
}

// SanitizeFilename makes a lead's first name safe to use in an artifact name.
// Whitespace and filesystem-unsafe characters become underscores.
func SanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(unsafeFilenameChars, r) {
			return filenameReplacement
		}

		return r
	}, name)
}

// FormatDuration renders an elapsed run time to a tenth of a second.
func FormatDuration(elapsed time.Duration) string {
	return elapsed.Round(durationPrecision).String()
}

// FormatFileSize renders an archive size with binary units.
func FormatFileSize(size int64) string {
	if size < sizeStep {
		return fmt.Sprintf("%d B", size)
	}

	value := float64(size) / sizeStep
	unit := 0

	for value >= sizeStep && unit < len(sizeUnits)-1 {
		value /= sizeStep
		unit++
	}

	return fmt.Sprintf("%.1f %s", value, sizeUnits[unit])
}
