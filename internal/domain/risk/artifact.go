package risk

import (
	"os"
	"path/filepath"
	"strings"
)

// AudioArtifact is an audio file on local disk awaiting scoring.
type AudioArtifact struct {
	Path        string
	Format      string
	SampleRate  int
	ContentType string
}

// NewAudioArtifact derives the format from the file extension.
func NewAudioArtifact(path, contentType string) AudioArtifact {
	return AudioArtifact{
		Path:        path,
		Format:      formatFromPath(path),
		ContentType: contentType,
	}
}

// Remove deletes the backing file. Missing files are not an error.
func (a AudioArtifact) Remove() error {
	return removeIfExists(a.Path)
}

// VideoArtifact is a video file on local disk awaiting scoring.
type VideoArtifact struct {
	Path        string
	Format      string
	ContentType string
}

// NewVideoArtifact derives the format from the file extension.
func NewVideoArtifact(path, contentType string) VideoArtifact {
	return VideoArtifact{
		Path:        path,
		Format:      formatFromPath(path),
		ContentType: contentType,
	}
}

// Remove deletes the backing file. Missing files are not an error.
func (v VideoArtifact) Remove() error {
	return removeIfExists(v.Path)
}

func formatFromPath(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func removeIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
