package playlist

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reelplay/reelplay-agent/internal/catalog"
)

const FileVersion = "1"

// File is the on-disk YAML form of a playlist.
type File struct {
	Version string      `yaml:"version"`
	Assets  []FileEntry `yaml:"assets"`
}

type FileEntry struct {
	Kind             catalog.Kind `yaml:"kind"`
	Name             string       `yaml:"name,omitempty"`
	Source           string       `yaml:"source"`
	Duration         float64      `yaml:"duration,omitempty"` // image play duration in seconds
	OriginalDuration float64      `yaml:"original_duration,omitempty"`
	TrimStart        float64      `yaml:"trim_start,omitempty"`
	TrimEnd          *float64     `yaml:"trim_end,omitempty"`
}

// ReadFile parses a playlist file into fresh assets. Relative local sources
// resolve against the file's directory.
func ReadFile(path string) ([]catalog.Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse playlist: %w", err)
	}
	if f.Version != "" && f.Version != FileVersion {
		return nil, fmt.Errorf("unsupported playlist version %q", f.Version)
	}

	base := filepath.Dir(path)
	now := time.Now()
	assets := make([]catalog.Asset, 0, len(f.Assets))
	for i, e := range f.Assets {
		source := e.Source
		if source == "" {
			return nil, fmt.Errorf("entry %d: missing source", i)
		}
		if !isURL(source) && !filepath.IsAbs(source) {
			source = filepath.Join(base, source)
		}
		name := e.Name
		if name == "" {
			name = catalog.NameFromPath(source)
		}

		a := catalog.Asset{
			ID:        catalog.NewID(),
			Kind:      e.Kind,
			Name:      name,
			SourceURL: source,
			CreatedAt: now,
		}
		switch e.Kind {
		case catalog.KindImage:
			a.ImageDuration = e.Duration
			if a.ImageDuration == 0 {
				a.ImageDuration = catalog.DefaultImageDuration
			}
		case catalog.KindVideo:
			a.OriginalDuration = e.OriginalDuration
			a.TrimStart = e.TrimStart
			a.TrimEnd = e.TrimEnd
		}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// WriteFile serializes assets to path.
func WriteFile(path string, assets []catalog.Asset) error {
	f := File{Version: FileVersion, Assets: make([]FileEntry, len(assets))}
	for i, a := range assets {
		e := FileEntry{Kind: a.Kind, Name: a.Name, Source: a.SourceURL}
		switch a.Kind {
		case catalog.KindImage:
			e.Duration = a.ImageDuration
		case catalog.KindVideo:
			e.OriginalDuration = a.OriginalDuration
			e.TrimStart = a.TrimStart
			e.TrimEnd = a.TrimEnd
		}
		f.Assets[i] = e
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode playlist: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create playlist dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Import replaces the store's contents with the playlist at path.
func (s *Store) Import(path string) (int, error) {
	assets, err := ReadFile(path)
	if err != nil {
		return 0, err
	}
	if err := s.Replace(assets); err != nil {
		return 0, err
	}
	return len(assets), nil
}

// Save writes the current playlist to path.
func (s *Store) Save(path string) error {
	return WriteFile(path, s.Snapshot())
}

func isURL(source string) bool {
	for _, scheme := range []string{"http://", "https://", "file://"} {
		if strings.HasPrefix(source, scheme) {
			return true
		}
	}
	return false
}
