// Package archive bundles accepted audio artifacts into a single zip file.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/voice-outreach/internal/core"
	"github.com/book-expert/voice-outreach/internal/fsutil"
)

const filePermissions = 0o640

var (
	// ErrDuplicateEntry is returned when two artifacts share a file name.
	ErrDuplicateEntry = errors.New("duplicate archive entry")
	// ErrInvalidEntry is returned for an artifact that is not an audio file.
	ErrInvalidEntry = errors.New("invalid archive entry")
)

// Build writes every artifact into one zip archive, each entry named by the
// base name of the artifact file. An empty artifact list yields a valid empty
// archive.
func Build(artifacts []core.Artifact) ([]byte, error) {
	var buf bytes.Buffer

	writer := zip.NewWriter(&buf)
	seen := make(map[string]struct{}, len(artifacts))
	modified := time.Now()

	for _, artifact := range artifacts {
		name := filepath.Base(artifact.FileName)
		if !fsutil.IsAudioFile(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEntry, artifact.FileName)
		}

		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
		}

		seen[name] = struct{}{}

		entry, err := writer.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create archive entry %s: %w", name, err)
		}

		_, err = entry.Write(artifact.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to write archive entry %s: %w", name, err)
		}
	}

	err := writer.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteFile saves an archive to path, creating parent directories.
func WriteFile(path string, data []byte) error {
	err := fsutil.EnsureParentDir(path)
	if err != nil {
		return err
	}

	err = os.WriteFile(path, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write archive %s: %w", path, err)
	}

	return nil
}

// Entries lists the entry names of an archive in order.
func Entries(data []byte) ([]string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	names := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		names = append(names, file.Name)
	}

	return names, nil
}
