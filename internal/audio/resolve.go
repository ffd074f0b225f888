package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrDisabled    = errors.New("audio_path is not enabled on this server")
	ErrOutsideRoot = errors.New("audio_path must be relative to the audio directory")
	ErrNotFound    = errors.New("audio file not found")
	ErrUnsupported = errors.New("unsupported audio format")
)

// Extensions accepted for alignment.
var Extensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".aac": true,
	".flac": true, ".ogg": true, ".opus": true, ".mp4": true,
	".mov": true, ".webm": true,
}

// ResolveFile maps a path relative to audioDir onto disk.
// The path must stay under the root after following symlinks, name a known
// media type and exist as a regular file.
func ResolveFile(audioDir, relPath string) (string, error) {
	if audioDir == "" {
		return "", ErrDisabled
	}
	rel := filepath.FromSlash(relPath)
	if !filepath.IsLocal(rel) {
		return "", ErrOutsideRoot
	}
	if !Extensions[strings.ToLower(filepath.Ext(rel))] {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(rel))
	}

	full := filepath.Join(audioDir, rel)
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, relPath)
	}
	root, err := filepath.EvalSymlinks(audioDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, relPath)
	}
	if inside, err := filepath.Rel(root, resolved); err != nil || !filepath.IsLocal(inside) {
		return "", ErrOutsideRoot
	}

	fi, err := os.Stat(resolved)
	if err != nil || !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, relPath)
	}
	return full, nil
}
