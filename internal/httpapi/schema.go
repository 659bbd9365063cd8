package httpapi

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"taskboard/internal/service"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

// maxJSONBody bounds request bodies decoded by bindJSON.
const maxJSONBody = 1 << 20

// schemaSet holds compiled request schemas keyed by file name without extension.
type schemaSet map[string]*jsonschema.Schema

func loadSchemas() (schemaSet, error) {
	entries, err := fs.ReadDir(schemaFiles, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	for _, entry := range entries {
		data, err := schemaFiles.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(entry.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", entry.Name(), err)
		}
	}

	set := make(schemaSet, len(entries))
	for _, entry := range entries {
		schema, err := compiler.Compile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", entry.Name(), err)
		}
		set[strings.TrimSuffix(entry.Name(), ".json")] = schema
	}
	return set, nil
}

// bindJSON validates the request body against the named schema and decodes it into dst.
func (s schemaSet) bindJSON(c echo.Context, name string, dst interface{}) error {
	schema, ok := s[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxJSONBody))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: request body must be JSON", service.ErrInvalidArgument)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s", service.ErrInvalidArgument, describeSchemaError(err))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidArgument, err)
	}
	return nil
}

// describeSchemaError reports the first leaf failure as "field: message".
func describeSchemaError(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := strings.TrimPrefix(ve.InstanceLocation, "/")
	if field == "" {
		return ve.Message
	}
	return field + ": " + ve.Message
}
