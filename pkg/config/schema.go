package config

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaVersion is the version of the embedded configuration schema.
const SchemaVersion = "1.0.0"

//go:embed schema/config.schema.json
var configSchema []byte

// settings is the document handed to the schema validator. Credentials are
// left out so they never appear in validation messages.
func (c *Config) settings() map[string]interface{} {
	return map[string]interface{}{
		"cloud_name":    c.CloudName,
		"cname":         c.CName,
		"delivery_type": c.DeliveryType,
		"folder":        c.Folder,
		"images_path":   c.ImagesPath,
		"private_cdn":   c.PrivateCDN,
		"upload_preset": c.UploadPreset,
		"concurrency":   c.Concurrency,
	}
}

// ValidationError lists every schema violation found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n%s", strings.Join(e.Problems, "\n"))
}

// Validate checks a configuration against the embedded JSON schema.
func Validate(c *Config) error {
	schemaLoader := gojsonschema.NewBytesLoader(configSchema)
	documentLoader := gojsonschema.NewGoLoader(c.settings())

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return &ValidationError{Problems: problems}
	}
	return nil
}
