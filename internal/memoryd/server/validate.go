package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.json
var schemaFS embed.FS

// Request body schemas.
const (
	schemaCreateMemory   = "create_memory.json"
	schemaSearchMemories = "search_memories.json"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 << 20

// validator holds the compiled request schemas.
type validator struct {
	schemas map[string]*jsonschema.Schema
}

func newValidator() (*validator, error) {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return nil, fmt.Errorf("server: read schemas: %w", err)
	}

	c := jsonschema.NewCompiler()
	var names []string
	for _, e := range entries {
		data, err := schemaFS.ReadFile(path.Join("schema", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("server: read schema %s: %w", e.Name(), err)
		}
		if err := c.AddResource(e.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("server: add schema %s: %w", e.Name(), err)
		}
		names = append(names, e.Name())
	}

	v := &validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		sch, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("server: compile schema %s: %w", name, err)
		}
		v.schemas[name] = sch
	}
	return v, nil
}

// decode reads a JSON body, validates it against the named schema and
// unmarshals it into dst. The returned error is safe to show to clients.
func (v *validator) decode(body io.Reader, schema string, dst any) error {
	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return errors.New("request body too large")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	sch, ok := v.schemas[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q", schema)
	}
	if err := sch.Validate(doc); err != nil {
		return errors.New(describe(err))
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// describe flattens a schema validation error into "location: message"
// lines taken from its leaf causes.
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}

	var lines []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			lines = append(lines, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(lines, "; ")
}
