package config

import "github.com/invopop/jsonschema"

// Schema generates a JSON Schema document describing Config, derived from
// its mapstructure/yaml struct tags. Operators can feed this to editor
// YAML-language-server integrations for config-file autocomplete and
// validation without mediastore itself running.
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: false,
	}
	return reflector.Reflect(&Config{})
}
