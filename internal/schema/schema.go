// Package schema loads the CUE definitions that describe each record kind
// and validates documents against them. A definition's fields are the
// kind's declared properties: the only names that may be set on a record
// or used as equality filters.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/mesh-intelligence/obay/pkg/types"
)

//go:embed schemas/*.cue
var embedded embed.FS

// Embedded returns the built-in schema files.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "schemas")
	if err != nil {
		panic(err)
	}
	return sub
}

// Schema validates records of one kind.
type Schema struct {
	kind  types.Kind
	names []string
	props types.PropertySet

	// cue.Context is not safe for concurrent use; mu serializes every
	// evaluation against ctx and def.
	mu  sync.Mutex
	ctx *cue.Context
	def cue.Value
}

// Load compiles every *.cue file in fsys and returns the schema for kind.
// Returns an error if no file defines kind.Definition.
func Load(fsys fs.FS, kind types.Kind) (*Schema, error) {
	files, err := fs.Glob(fsys, "*.cue")
	if err != nil {
		return nil, fmt.Errorf("listing schema files: %w", err)
	}
	sort.Strings(files)

	ctx := cuecontext.New()
	for _, name := range files {
		src, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		v := ctx.CompileBytes(src, cue.Filename(path.Base(name)))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("compiling %s: %w", name, err)
		}
		def := v.LookupPath(cue.ParsePath(kind.Definition))
		if !def.Exists() {
			continue
		}
		return newSchema(ctx, kind, def)
	}
	return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, kind.Definition)
}

// LoadAll loads a schema for each kind, keyed by kind name.
func LoadAll(fsys fs.FS, kinds []types.Kind) (map[string]*Schema, error) {
	out := make(map[string]*Schema, len(kinds))
	for _, k := range kinds {
		s, err := Load(fsys, k)
		if err != nil {
			return nil, fmt.Errorf("loading %s schema: %w", k.Name, err)
		}
		out[k.Name] = s
	}
	return out, nil
}

func newSchema(ctx *cue.Context, kind types.Kind, def cue.Value) (*Schema, error) {
	iter, err := def.Fields(cue.Optional(true))
	if err != nil {
		return nil, fmt.Errorf("iterating %s fields: %w", kind.Definition, err)
	}
	var names []string
	for iter.Next() {
		names = append(names, iter.Label())
	}
	sort.Strings(names)
	return &Schema{
		kind:  kind,
		names: names,
		props: types.NewPropertySet(names...),
		ctx:   ctx,
		def:   def,
	}, nil
}

// Kind returns the record kind this schema describes.
func (s *Schema) Kind() types.Kind { return s.kind }

// Properties returns the declared property names.
func (s *Schema) Properties() types.PropertySet { return s.props }

// PropertyNames returns the declared property names in sorted order.
func (s *Schema) PropertyNames() []string {
	return append([]string(nil), s.names...)
}

// Validate checks doc against the kind's definition. Required properties
// must be present, every value must satisfy its constraint, and properties
// the definition does not declare are rejected. Returns a *ValidationError.
func (s *Schema) Validate(doc types.Record) error {
	if doc == nil {
		return NewValidationError(s.kind.Name, "", "document must be an object")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return NewValidationError(s.kind.Name, "", fmt.Sprintf("document is not JSON encodable: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.ctx.CompileBytes(raw, cue.Filename(s.kind.Name+".json"))
	if err := data.Err(); err != nil {
		return newValidationError(s.kind, err)
	}
	if err := s.def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return newValidationError(s.kind, err)
	}
	return nil
}
