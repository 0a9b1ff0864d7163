package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is a settings file encoding.
type Format string

// Supported file formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatForPath picks the file format from the path extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported settings file extension %q (want .json, .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// document is the on-disk shape. Pointer fields distinguish unset keys
// from zero values.
type document struct {
	Active    *bool   `json:"extension-active,omitempty" yaml:"extension-active,omitempty" toml:"extension-active,omitempty"`
	Interval  *int    `json:"update-interval,omitempty" yaml:"update-interval,omitempty" toml:"update-interval,omitempty"`
	CountMode *string `json:"count-mode,omitempty" yaml:"count-mode,omitempty" toml:"count-mode,omitempty"`
}

// values converts the document to canonical store values. Keys holding
// invalid values are reported and left out.
func (d document) values() (map[string]any, []error) {
	values := make(map[string]any)
	var errs []error

	put := func(key string, raw any) {
		v, err := Normalize(key, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		values[key] = v
	}

	if d.Active != nil {
		put(KeyActive, *d.Active)
	}
	if d.Interval != nil {
		put(KeyInterval, *d.Interval)
	}
	if d.CountMode != nil {
		put(KeyCountMode, *d.CountMode)
	}
	return values, errs
}

func documentFrom(values map[string]any) document {
	var d document
	if v, ok := values[KeyActive].(bool); ok {
		d.Active = &v
	}
	if v, ok := values[KeyInterval].(int); ok {
		d.Interval = &v
	}
	if v, ok := values[KeyCountMode].(CountMode); ok {
		s := string(v)
		d.CountMode = &s
	}
	return d
}

func decodeDocument(format Format, data []byte) (document, error) {
	var d document
	if len(bytes.TrimSpace(data)) == 0 {
		return d, nil
	}

	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &d)
	case FormatYAML:
		err = yaml.Unmarshal(data, &d)
	case FormatTOML:
		err = toml.Unmarshal(data, &d)
	default:
		return d, fmt.Errorf("unsupported settings format %q", format)
	}
	if err != nil {
		return d, fmt.Errorf("parse %s settings: %w", format, err)
	}
	return d, nil
}

func encodeDocument(format Format, d document) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal settings: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("marshal settings: %w", err)
		}
		return data, nil
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(d); err != nil {
			return nil, fmt.Errorf("marshal settings: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported settings format %q", format)
	}
}
