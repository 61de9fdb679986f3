package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies the serialization of a schema definition.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension. Anything other than
// .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// definition is the on-disk shape of one field, keyed by field name.
type definition struct {
	Header      string   `json:"header,omitempty" yaml:"header,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Example     any      `json:"example,omitempty" yaml:"example,omitempty"`
	Synonyms    []string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
	HeaderRegex string   `json:"header_regex,omitempty" yaml:"header_regex,omitempty"`
	Type        string   `json:"type,omitempty" yaml:"type,omitempty"`
}

func (d definition) field(name string) CanonicalField {
	return CanonicalField{
		Name:        name,
		Header:      d.Header,
		Description: d.Description,
		Example:     exampleString(d.Example),
		Synonyms:    d.Synonyms,
		HeaderRegex: d.HeaderRegex,
		Type:        d.Type,
	}
}

func definitionOf(f CanonicalField) definition {
	d := definition{
		Header:      f.Header,
		Description: f.Description,
		Synonyms:    f.Synonyms,
		HeaderRegex: f.HeaderRegex,
		Type:        f.Type,
	}
	if f.Example != "" {
		d.Example = f.Example
	}
	return d
}

func exampleString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Load decodes a schema definition: an object keyed by canonical field name
// whose key order is the canonical column order. Entries whose value is not
// an object are skipped.
func Load(r io.Reader, format Format) (*Model, error) {
	var (
		fields []CanonicalField
		err    error
	)
	switch format {
	case FormatYAML:
		fields, err = decodeYAML(r)
	default:
		fields, err = decodeJSON(r)
	}
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrEmptySchema
	}
	return NewModel(fields...)
}

func decodeJSON(r io.Reader) ([]CanonicalField, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptySchema
		}
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode schema: definition must be an object keyed by field name")
	}

	var fields []CanonicalField
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode schema: %w", err)
		}
		name, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode schema field %q: %w", name, err)
		}
		if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
			continue
		}

		var def definition
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("decode schema field %q: %w", name, err)
		}
		fields = append(fields, def.field(name))
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return fields, nil
}

func decodeYAML(r io.Reader) ([]CanonicalField, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptySchema
		}
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, ErrEmptySchema
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("decode schema: definition must be a mapping keyed by field name")
	}

	var fields []CanonicalField
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if val.Kind != yaml.MappingNode {
			continue
		}
		var def definition
		if err := val.Decode(&def); err != nil {
			return nil, fmt.Errorf("decode schema field %q: %w", key.Value, err)
		}
		fields = append(fields, def.field(key.Value))
	}
	return fields, nil
}

// Encode writes the model in the given format, preserving field order.
func Encode(w io.Writer, m *Model, format Format) error {
	if format == FormatYAML {
		return encodeYAML(w, m)
	}
	return encodeJSON(w, m)
}

func encodeJSON(w io.Writer, m *Model) error {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, f := range m.fields {
		key, err := json.Marshal(f.Name)
		if err != nil {
			return err
		}
		val, err := json.MarshalIndent(definitionOf(f), "  ", "  ")
		if err != nil {
			return fmt.Errorf("encode schema field %q: %w", f.Name, err)
		}
		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(val)
		if i < len(m.fields)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func encodeYAML(w io.Writer, m *Model) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range m.fields {
		var val yaml.Node
		if err := val.Encode(definitionOf(f)); err != nil {
			return fmt.Errorf("encode schema field %q: %w", f.Name, err)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: f.Name},
			&val,
		)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	return enc.Close()
}

// MarshalJSON renders the model as an ordered object keyed by field name.
func (m *Model) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeJSON(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
