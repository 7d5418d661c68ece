package lexicon

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/atmopics/share/common/repo"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	// ErrSchemaViolation marks a record whose shape does not match its collection.
	// It wraps repo.ErrInvalidResponse so callers treat it as a bad payload.
	ErrSchemaViolation = fmt.Errorf("%w: schema violation", repo.ErrInvalidResponse)

	// ErrUnknownCollection is returned for collections without a schema
	ErrUnknownCollection = errors.New("unknown collection")
)

// Registry holds compiled schemas per collection
type Registry struct {
	schemas map[string]*jsonschema.Schema
}

// NewRegistry compiles the embedded schemas for every share route
func NewRegistry() (*Registry, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	reg := &Registry{schemas: make(map[string]*jsonschema.Schema, len(ShareRoutes))}
	for collection := range ShareRoutes {
		raw, err := schemaFS.ReadFile("schemas/" + collection + ".json")
		if err != nil {
			return nil, fmt.Errorf("load schema %s: %w", collection, err)
		}
		schemaURL := "https://atmo.pics/lexicons/" + collection + ".schema.json"
		if err := c.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", collection, err)
		}
		compiled, err := c.Compile(schemaURL)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", collection, err)
		}
		reg.schemas[collection] = compiled
	}

	return reg, nil
}

// MustRegistry is NewRegistry for package init and tests
func MustRegistry() *Registry {
	reg, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return reg
}

var defaultRegistry = sync.OnceValues(NewRegistry)

// Decode validates rec against the embedded schema of collection using a
// shared registry
func Decode(collection string, rec *repo.Record) (Content, error) {
	reg, err := defaultRegistry()
	if err != nil {
		return nil, err
	}
	return reg.Decode(collection, rec)
}

// Decode validates a fetched record against its collection schema and
// returns the typed variant
func (r *Registry) Decode(collection string, rec *repo.Record) (Content, error) {
	schema, ok := r.schemas[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	doc, err := unmarshalJSON(rec.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSchemaViolation, collection, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSchemaViolation, collection, err)
	}

	fields, err := rec.Fields()
	if err != nil {
		return nil, err
	}

	var content Content
	switch collection {
	case CollectionCode:
		content = &CodeRecord{base: base{fields: fields}}
	case CollectionMarkdown:
		content = &MarkdownRecord{base: base{fields: fields}}
	case CollectionImage:
		content = &ImageRecord{base: base{fields: fields}}
	case CollectionVideo:
		content = &VideoRecord{base: base{fields: fields}}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	if err := json.Unmarshal(rec.Value, content); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSchemaViolation, collection, err)
	}

	return content, nil
}

// unmarshalJSON decodes raw into the form jsonschema v5 validates:
// numbers kept as json.Number and no trailing data allowed
func unmarshalJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if t, _ := dec.Token(); t != nil {
		return nil, fmt.Errorf("invalid character %v after top-level value", t)
	}
	return doc, nil
}
