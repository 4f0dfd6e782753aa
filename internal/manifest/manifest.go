package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"gopkg.in/yaml.v3"

	"scenegen/internal/media/ffmpeg"
	"scenegen/internal/services"
	"scenegen/internal/store"
)

// Manifest is the YAML form of a scene.
type Manifest struct {
	Name       string   `yaml:"name"`
	Mood       string   `yaml:"mood"`
	Music      string   `yaml:"music"`
	Characters []string `yaml:"characters"`
	Shots      []Shot   `yaml:"shots"`
}

// Shot is the YAML form of one shot.
type Shot struct {
	Prompt   string  `yaml:"prompt"`
	Duration float64 `yaml:"duration"`
	// Characters overrides the scene's character list for this shot.
	Characters    []string `yaml:"characters"`
	SourceImage   string   `yaml:"source_image"`
	Dialogue      string   `yaml:"dialogue"`
	DialogueAudio string   `yaml:"dialogue_audio"`
	Transition    string   `yaml:"transition"`
	Overlap       float64  `yaml:"overlap"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "manifest", "load", "manifest not found", err)
		}
		return nil, services.Wrap(services.ErrValidation, "manifest", "load", "read manifest", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	m.resolvePaths(filepath.Dir(path))
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Parse decodes manifest YAML without touching the filesystem.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, services.Wrap(services.ErrValidation, "manifest", "parse", "invalid yaml", err)
	}
	m.Name = strings.TrimSpace(m.Name)
	m.Mood = strings.TrimSpace(m.Mood)
	m.Characters = cleanNames(m.Characters)
	for i := range m.Shots {
		m.Shots[i].Characters = cleanNames(m.Shots[i].Characters)
	}
	return &m, nil
}

// cleanNames trims names and drops blanks and repeats, keeping order.
func cleanNames(names []string) []string {
	var out []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func (m *Manifest) resolvePaths(base string) {
	m.Music = resolve(base, m.Music)
	for i := range m.Shots {
		m.Shots[i].SourceImage = resolve(base, m.Shots[i].SourceImage)
		m.Shots[i].DialogueAudio = resolve(base, m.Shots[i].DialogueAudio)
	}
}

func resolve(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// Validate checks the scene definition. File references are checked for
// existence; shot 1's source image must also sniff as an image.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return invalid("scene name is required")
	}
	if len(m.Shots) == 0 {
		return invalid("scene has no shots")
	}
	for i, shot := range m.Shots {
		n := i + 1
		if strings.TrimSpace(shot.Prompt) == "" {
			return invalid(fmt.Sprintf("shot %d: prompt is required", n))
		}
		if shot.Duration <= 0 {
			return invalid(fmt.Sprintf("shot %d: duration must be positive", n))
		}
		if shot.Overlap < 0 {
			return invalid(fmt.Sprintf("shot %d: overlap must not be negative", n))
		}
		if strings.ContainsAny(shot.Transition, " ;:=,[]") {
			return invalid(fmt.Sprintf("shot %d: invalid transition %q", n, shot.Transition))
		}
		if shot.DialogueAudio != "" {
			if _, err := os.Stat(shot.DialogueAudio); err != nil {
				return invalid(fmt.Sprintf("shot %d: dialogue audio %s: %v", n, shot.DialogueAudio, err))
			}
		}
		if n == 1 {
			if shot.SourceImage == "" {
				return invalid("shot 1: source_image is required")
			}
			if err := checkImage(shot.SourceImage); err != nil {
				return invalid(fmt.Sprintf("shot 1: %v", err))
			}
		}
	}
	if m.Music != "" {
		if _, err := os.Stat(m.Music); err != nil {
			return invalid(fmt.Sprintf("music %s: %v", m.Music, err))
		}
	}
	return nil
}

func checkImage(path string) error {
	kind, err := filetype.MatchFile(path)
	if err != nil {
		return fmt.Errorf("source image %s: %w", path, err)
	}
	if kind.MIME.Type != "image" {
		return fmt.Errorf("source image %s is not an image", path)
	}
	return nil
}

// NewScene converts the manifest into a store scene definition. Target
// duration is the crossfaded length implied by the shot durations, using
// defaultOverlap where a shot leaves its overlap unset.
func (m *Manifest) NewScene(defaultOverlap float64) store.NewScene {
	spec := store.NewScene{
		Name:      m.Name,
		Mood:      m.Mood,
		MusicPath: m.Music,
	}
	for i, shot := range m.Shots {
		transition := strings.ToLower(strings.TrimSpace(shot.Transition))
		overlap := shot.Overlap
		if transition == ffmpeg.TransitionCut {
			overlap = 0
		}
		characters := shot.Characters
		if len(characters) == 0 {
			characters = m.Characters
		}
		spec.Shots = append(spec.Shots, store.NewShot{
			Prompt:             strings.TrimSpace(shot.Prompt),
			Duration:           shot.Duration,
			Characters:         characters,
			SourceImage:        shot.SourceImage,
			DialogueText:       strings.TrimSpace(shot.Dialogue),
			DialogueAudio:      shot.DialogueAudio,
			Transition:         transition,
			TransitionDuration: overlap,
		})
		spec.TargetDuration += shot.Duration
		if i < len(m.Shots)-1 && transition != ffmpeg.TransitionCut {
			if overlap <= 0 {
				overlap = defaultOverlap
			}
			spec.TargetDuration -= overlap
		}
	}
	return spec
}

func invalid(msg string) error {
	return services.Wrap(services.ErrValidation, "manifest", "validate", msg, nil)
}
