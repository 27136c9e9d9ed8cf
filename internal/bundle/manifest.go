package bundle

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/pivot/internal/schema"
)

// Manifest is the durable, declarative half of a bundle: what an operator
// writes to deploy a new implementation version.
type Manifest struct {
	Version string        `json:"version"`
	Schema  schema.Schema `json:"schema"`
}

// manifestConstraints is unified with every loaded manifest so malformed
// files fail with a CUE constraint error rather than a decode surprise.
const manifestConstraints = `
version!: string & !=""
fields!: [...{name!: string & !="", type!: "int" | "uint" | "string" | "bool"}]
reserved?: int & >=0
`

// LoadManifest reads and validates a bundle manifest from a CUE file.
//
// Expected shape:
//
//	version: "1.0.0"
//	fields: [
//		{name: "value", type: "uint"},
//	]
//	reserved: 2
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses a manifest from CUE source bytes.
func ParseManifest(src []byte) (*Manifest, error) {
	ctx := cuecontext.New()

	constraints := ctx.CompileString(manifestConstraints)
	if err := constraints.Err(); err != nil {
		return nil, fmt.Errorf("compile manifest constraints: %w", err)
	}

	v := ctx.CompileBytes(src)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	unified := v.Unify(constraints)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	var raw struct {
		Version  string `json:"version"`
		Fields   []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
		Reserved int `json:"reserved"`
	}
	if err := unified.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	m := &Manifest{Version: raw.Version}
	m.Schema.Reserved = raw.Reserved
	for _, f := range raw.Fields {
		m.Schema.Fields = append(m.Schema.Fields, schema.Field{
			Name: f.Name,
			Type: schema.FieldType(f.Type),
		})
	}
	if err := m.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest schema: %w", err)
	}
	return m, nil
}

// Handle returns the content-addressed handle the manifest deploys to.
func (m *Manifest) Handle() string {
	return schema.Handle(m.Version, m.Schema)
}

// Build constructs a bundle from the manifest. When ops is nil, the bundle
// gets the generic accessor op table derived from its schema.
func (m *Manifest) Build(ops map[string]Handler) (*Bundle, error) {
	if ops == nil {
		ops = Accessors(m.Schema)
	}
	return New(m.Version, m.Schema, ops)
}
