package config

import (
	"bytes"
	_ "embed"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/albapepper/powerdata/internal/store"
)

//go:embed fields.yaml
var defaultFields []byte

// FieldMapping holds the storable fields of every table family.
type FieldMapping struct {
	Sport     store.FieldSpec `yaml:"sport_fields"`
	Squad     store.FieldSpec `yaml:"squad_fields"`
	Player    store.FieldSpec `yaml:"player_fields"`
	Fixture   store.FieldSpec `yaml:"fixture_fields"`
	Match     store.FieldSpec `yaml:"match_fields"`
	Period    store.FieldSpec `yaml:"period_fields"`
	ScoreFlow store.FieldSpec `yaml:"score_flow_fields"`
}

// DefaultFieldMapping returns the embedded mapping.
func DefaultFieldMapping() (*FieldMapping, error) {
	return ParseFieldMapping(defaultFields)
}

// LoadFieldMapping reads path, or the embedded default when path is empty.
func LoadFieldMapping(path string) (*FieldMapping, error) {
	if path == "" {
		return DefaultFieldMapping()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read field mapping %s", path)
	}
	m, err := ParseFieldMapping(data)
	if err != nil {
		return nil, errors.Wrapf(err, "field mapping %s", path)
	}
	return m, nil
}

// ParseFieldMapping decodes a YAML or JSON mapping document. Unknown top-level
// keys are rejected so a misspelt table family fails loudly.
func ParseFieldMapping(data []byte) (*FieldMapping, error) {
	var m FieldMapping
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(err, "decode field mapping")
	}
	if err := validate.Struct(&m); err != nil {
		return nil, errors.Wrap(err, "invalid field mapping")
	}
	return &m, nil
}
