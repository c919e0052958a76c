package gen

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Spec is the YAML description of a set of entities.
//
//	package: github.com/acme/blog/models
//	entities:
//	  - name: User
//	    fields:
//	      - {name: name, type: string}
//	      - {name: status, type: enum, values: [active, banned]}
//	    edges:
//	      - {name: posts, kind: has_many, entity: Post, foreign_key: author_id}
//	  - name: Post
//	    fields:
//	      - {name: title, type: string}
//	      - {name: author_id, type: int64, optional: true}
//	    edges:
//	      - {name: author, kind: belongs_to, entity: User, foreign_key: author_id}
type Spec struct {
	// Package is the import path of the generated code. The --package
	// flag and WithPackage override it.
	Package string `yaml:"package"`
	// IDType is the default primary key type of the entities.
	IDType   string       `yaml:"id_type"`
	Entities []EntitySpec `yaml:"entities"`
}

// EntitySpec describes one entity.
type EntitySpec struct {
	Name       string      `yaml:"name"`
	Table      string      `yaml:"table"`
	PrimaryKey string      `yaml:"primary_key"`
	IDType     string      `yaml:"id_type"`
	Comment    string      `yaml:"comment"`
	Fields     []FieldSpec `yaml:"fields"`
	Edges      []EdgeSpec  `yaml:"edges"`
}

// FieldSpec describes one column of an entity.
type FieldSpec struct {
	Name string `yaml:"name"`
	// Type is one of string, text, int, int8, int16, int32, int64, uint,
	// uint8, uint16, uint32, uint64, float32, float64, bool, time, enum,
	// json or uuid.
	Type string `yaml:"type"`
	// Column defaults to the snake-cased name.
	Column   string   `yaml:"column"`
	Values   []string `yaml:"values"`
	Optional bool     `yaml:"optional"`
	Comment  string   `yaml:"comment"`
}

// EdgeSpec describes one relation of an entity.
type EdgeSpec struct {
	Name string `yaml:"name"`
	// Kind is one of has_one, has_many, belongs_to or belongs_to_many.
	// CamelCase spellings are accepted.
	Kind            string `yaml:"kind"`
	Entity          string `yaml:"entity"`
	ForeignKey      string `yaml:"foreign_key"`
	LocalKey        string `yaml:"local_key"`
	OwnerKey        string `yaml:"owner_key"`
	Through         string `yaml:"through"`
	PivotForeignKey string `yaml:"pivot_foreign_key"`
	PivotRelatedKey string `yaml:"pivot_related_key"`
	Comment         string `yaml:"comment"`
}

// LoadSpec reads a Spec from a YAML file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gen: read spec: %w", err)
	}
	s, err := ParseSpec(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w (file: %s)", err, path)
	}
	return s, nil
}

// ParseSpec decodes a Spec. Unknown keys are rejected.
func ParseSpec(r io.Reader) (*Spec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	s := &Spec{}
	if err := dec.Decode(s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewSchemaError("", "", "empty spec", nil)
		}
		return nil, NewSchemaError("", "", "decode", err)
	}
	if len(s.Entities) == 0 {
		return nil, NewSchemaError("", "", "no entities declared", nil)
	}
	return s, nil
}
