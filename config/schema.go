package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const schemaURL = "storymap.schema.json"

// GenerateSchema reflects the JSON Schema for storymap.yml. Unknown
// top-level keys are allowed because they carry extension sections.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
	}

	type BaseConfig struct {
		Version string       `yaml:"version,omitempty" jsonschema:"description=Configuration version (e.g. '1.0')"`
		Worker  WorkerConfig `yaml:"worker,omitempty" jsonschema:"description=Backend worker process"`
		Queue   QueueConfig  `yaml:"queue,omitempty" jsonschema:"description=Save queue timing"`
		Graph   GraphConfig  `yaml:"graph,omitempty" jsonschema:"description=Story graph materialization"`
		Daemon  DaemonConfig `yaml:"daemon,omitempty" jsonschema:"description=Daemon socket and pid file"`
	}

	schema := r.Reflect(&BaseConfig{})
	schema.Title = "storymap configuration"
	schema.Description = "Schema for storymap.yml."
	schema.AdditionalProperties = nil

	return json.MarshalIndent(schema, "", "  ")
}

// ValidateDocument checks a raw configuration document against the
// generated schema, before env expansion and defaults.
func ValidateDocument(data []byte, format Format) error {
	schemaData, err := GenerateSchema()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	compiler := santhosh.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaData)); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	var doc interface{}
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	if doc == nil {
		return nil
	}

	// Round-trip through JSON so numbers and maps have the types the
	// validator expects.
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert document to JSON: %w", err)
	}
	var normalized interface{}
	if err := json.Unmarshal(jsonData, &normalized); err != nil {
		return fmt.Errorf("failed to convert document to JSON: %w", err)
	}

	if err := schema.Validate(normalized); err != nil {
		if validationErr, ok := err.(*santhosh.ValidationError); ok {
			var messages []string
			collectErrors(validationErr, &messages)
			return fmt.Errorf("schema validation failed:\n%s", strings.Join(messages, "\n"))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func collectErrors(err *santhosh.ValidationError, messages *[]string) {
	if err.InstanceLocation != "" {
		*messages = append(*messages, fmt.Sprintf("- %s: %s", err.InstanceLocation, err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
