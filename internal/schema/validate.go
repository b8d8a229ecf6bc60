// Package schema provides JSON schema validation for hilrun configuration files.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	schemafs "github.com/AndreyAkinshin/hilrun/schema"
)

const (
	configSchemaName = "config.schema.json"
	taskSchemaName   = "task.schema.json"
)

var (
	configSchema *jsonschema.Schema
	taskSchema   *jsonschema.Schema
	compileOnce  sync.Once
	compileErr   error
)

// compileSchemas compiles all embedded schemas once.
func compileSchemas() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()

		for _, name := range []string{configSchemaName, taskSchemaName} {
			data, err := schemafs.FS.ReadFile(name)
			if err != nil {
				compileErr = fmt.Errorf("read %s: %w", name, err)
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
			if err != nil {
				compileErr = fmt.Errorf("unmarshal %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, doc); err != nil {
				compileErr = fmt.Errorf("add %s resource: %w", name, err)
				return
			}
		}

		var err error
		configSchema, err = compiler.Compile(configSchemaName)
		if err != nil {
			compileErr = fmt.Errorf("compile config schema: %w", err)
			return
		}

		taskSchema, err = compiler.Compile(taskSchemaName)
		if err != nil {
			compileErr = fmt.Errorf("compile task schema: %w", err)
			return
		}
	})

	return compileErr
}

// ValidateConfig validates JSON data against the main config schema.
func ValidateConfig(data []byte) error {
	if err := compileSchemas(); err != nil {
		return err
	}
	return validate(configSchema, "config", data)
}

// ValidateTask validates JSON data against the task config schema.
func ValidateTask(data []byte) error {
	if err := compileSchemas(); err != nil {
		return err
	}
	return validate(taskSchema, "task config", data)
}

func validate(s *jsonschema.Schema, what string, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if _, ok := v.(map[string]any); !ok {
		return fmt.Errorf("%s validation failed: root must be an object", what)
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s validation failed: %w", what, err)
	}

	return nil
}
