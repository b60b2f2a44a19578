package request

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/dataimport/internal/errors"
)

// Load modes accepted in a manifest entry.
const (
	ModeEager = "eager"
	ModeLazy  = "lazy"
)

// Manifest is the on-disk description of a document's import requests, used
// where no live document is available to scan.
type Manifest struct {
	Requests []ManifestEntry `yaml:"requests"`
}

// ManifestEntry is one key requested by one or more elements.
type ManifestEntry struct {
	Key      string  `yaml:"key"`
	Mode     string  `yaml:"mode"`
	Module   string  `yaml:"module"`
	Elements []*Node `yaml:"elements"`
}

// Scan is the result of decoding a manifest.
type Scan struct {
	Requests Requests
	// Bindings maps each key to the module name the manifest binds it to.
	// Keys without a binding are absent.
	Bindings map[Key]string
}

// DecodeManifest reads a YAML manifest and partitions it into requests.
// Entries repeating a key are merged when their modes agree and rejected
// otherwise.
func DecodeManifest(r io.Reader) (*Scan, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.NewValidationError(errors.ErrInvalidRequest, "", nil, "manifest is empty")
		}
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return m.Scan()
}

// Scan converts the manifest into a validated Scan.
func (m *Manifest) Scan() (*Scan, error) {
	scan := &Scan{
		Requests: Requests{Eager: make(Set), Deferred: make(Set)},
		Bindings: make(map[Key]string),
	}
	modes := make(map[Key]string)

	for i, entry := range m.Requests {
		field := fmt.Sprintf("requests[%d]", i)
		key := Key(strings.TrimSpace(entry.Key))
		if key == "" {
			return nil, errors.NewValidationError(errors.ErrInvalidRequest, field+".key", entry.Key, "must not be empty")
		}

		mode := strings.ToLower(strings.TrimSpace(entry.Mode))
		switch mode {
		case "":
			mode = ModeEager
		case ModeEager, ModeLazy:
		default:
			return nil, errors.NewValidationError(errors.ErrInvalidRequest, field+".mode", entry.Mode, "must be one of: eager, lazy")
		}

		if len(entry.Elements) == 0 {
			return nil, errors.NewValidationError(errors.ErrInvalidRequest, field+".elements", 0, "must list at least one element")
		}
		for j, node := range entry.Elements {
			if node == nil || node.ID == "" {
				return nil, errors.NewValidationError(errors.ErrInvalidRequest, fmt.Sprintf("%s.elements[%d].id", field, j), "", "must not be empty")
			}
		}

		if prev, seen := modes[key]; seen && prev != mode {
			return nil, errors.NewValidationError(errors.ErrInvalidRequest, field+".mode", mode, fmt.Sprintf("key %q already requested as %s", key, prev))
		}
		modes[key] = mode

		if entry.Module != "" {
			if bound, ok := scan.Bindings[key]; ok && bound != entry.Module {
				return nil, errors.NewValidationError(errors.ErrInvalidRequest, field+".module", entry.Module, fmt.Sprintf("key %q already bound to %s", key, bound))
			}
			scan.Bindings[key] = entry.Module
		}

		target := scan.Requests.Eager
		if mode == ModeLazy {
			target = scan.Requests.Deferred
		}
		for _, node := range entry.Elements {
			target[key] = append(target[key], node)
		}
	}

	if err := scan.Requests.Validate(); err != nil {
		return nil, err
	}
	return scan, nil
}
