package patterns

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/marketlens/marketlens-cli/internal/model"
)

// Overlay holds user-supplied extra rules, keyed by field name. Prepend
// rules are tried before the built-ins, append rules after, so operators
// can teach the cascade new LLM phrasings without a rebuild.
type Overlay struct {
	Fields map[string]OverlayField `yaml:"fields"`
}

// OverlayField is the overlay entry for one field.
type OverlayField struct {
	Prepend []Rule `yaml:"prepend"`
	Append  []Rule `yaml:"append"`
}

// LoadOverlay reads an overlay definition from a YAML file.
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "patterns: read overlay")
	}
	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, eris.Wrap(err, "patterns: unmarshal overlay")
	}
	for field, of := range o.Fields {
		for _, r := range append(append([]Rule{}, of.Prepend...), of.Append...) {
			if r.Name == "" || r.Expr == "" {
				return nil, eris.Errorf("patterns: overlay rule for %q missing name or pattern", field)
			}
		}
	}
	return &o, nil
}

// WithOverlay returns a new Library with the overlay's rules merged in.
// The receiver is not modified; cascade order within each source is
// preserved. Overlay entries for unknown fields are ignored.
func (l *Library) WithOverlay(o *Overlay) *Library {
	if o == nil || len(o.Fields) == 0 {
		return l
	}
	merged := make(map[model.DataType][]FieldCascade, len(l.byType))
	for dt, cascades := range l.byType {
		out := make([]FieldCascade, len(cascades))
		for i, c := range cascades {
			of, ok := o.Fields[c.Field]
			if !ok {
				out[i] = c
				continue
			}
			rules := make([]Rule, 0, len(of.Prepend)+len(c.Rules)+len(of.Append))
			rules = append(rules, of.Prepend...)
			rules = append(rules, c.Rules...)
			rules = append(rules, of.Append...)
			out[i] = FieldCascade{Field: c.Field, Rules: rules}
		}
		merged[dt] = out
	}
	return &Library{byType: merged}
}
