package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bozonx/mediastore/internal/config"
	"github.com/spf13/cobra"
)

var configSchemaCmd = &cobra.Command{
	Use:   "config-schema",
	Short: "Print the JSON Schema for the configuration file",
	Long: `Generate a JSON Schema document describing every configuration
field, for editor autocomplete/validation against config.yaml.`,
	RunE: runConfigSchema,
}

func init() {
	rootCmd.AddCommand(configSchemaCmd)
}

func runConfigSchema(cmd *cobra.Command, args []string) error {
	schema := config.Schema()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode config schema: %w", err)
	}
	return nil
}
