package decisiontree

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Source produces a Tree. It is consulted once at process start.
type Source interface {
	Load() (*Tree, error)
}

// rawNode is the on-disk shape shared by the JSON and YAML formats:
// {"text": "...", "yes": {...} | null, "no": {...} | null}.
type rawNode struct {
	Text string   `json:"text" yaml:"text"`
	Yes  *rawNode `json:"yes" yaml:"yes"`
	No   *rawNode `json:"no" yaml:"no"`
}

// FileSource reads a tree from a .json, .yaml or .yml file.
type FileSource struct {
	Path string
}

func (s FileSource) Load() (*Tree, error) {
	if s.Path == "" {
		return nil, errors.New("knowledge base path is empty")
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base %s: %w", s.Path, err)
	}
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseJSON decodes a tree from its JSON document form.
func ParseJSON(data []byte) (*Tree, error) {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse knowledge base json: %w", err)
	}
	return fromRaw(&raw)
}

// ParseYAML decodes a tree from YAML with the same keys as the JSON form.
func ParseYAML(data []byte) (*Tree, error) {
	var raw rawNode
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse knowledge base yaml: %w", err)
	}
	return fromRaw(&raw)
}

func fromRaw(raw *rawNode) (*Tree, error) {
	root, err := build(raw, Path{})
	if err != nil {
		return nil, err
	}
	return New(root)
}

func build(raw *rawNode, at Path) (Node, error) {
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return nil, fmt.Errorf("knowledge base node at %s has no text", at)
	}
	if raw.Yes == nil && raw.No == nil {
		return &Diagnosis{Label: text}, nil
	}
	q := &Question{Prompt: text}
	if raw.Yes != nil {
		child, err := build(raw.Yes, at.Append(Yes))
		if err != nil {
			return nil, err
		}
		q.Yes = child
	}
	if raw.No != nil {
		child, err := build(raw.No, at.Append(No))
		if err != nil {
			return nil, err
		}
		q.No = child
	}
	return q, nil
}

// Fallback is the built-in tree used when the configured source cannot be read.
func Fallback() *Tree {
	return &Tree{root: &Question{
		Prompt: "Нарушены ли зрительные функции?",
		Yes: &Question{
			Prompt: "Есть ли перикорнеальная или смешанная инъекция?",
			Yes:    &Diagnosis{Label: "Ирит"},
			No:     &Diagnosis{Label: "Ксерофтальмия"},
		},
		No: &Question{
			Prompt: "Есть ли конъюнктивальная инъекция?",
			Yes:    &Diagnosis{Label: "Бактериальный конъюнктивит"},
			No:     &Diagnosis{Label: "Эндокринная офтальмопатия"},
		},
	}}
}

// LoadWithFallback loads from src and substitutes Fallback on failure. The
// substitution changes diagnostic content, so it is logged at error level.
// The second result reports whether the fallback is in use.
func LoadWithFallback(src Source, logger zerolog.Logger) (*Tree, bool) {
	tree, err := src.Load()
	if err == nil {
		logger.Info().
			Int("diagnoses", len(tree.Diagnoses())).
			Str("root", tree.Root().Text()).
			Msg("knowledge base loaded")
		return tree, false
	}
	logger.Error().Err(err).Msg("knowledge base unavailable, using built-in fallback tree")
	return Fallback(), true
}
