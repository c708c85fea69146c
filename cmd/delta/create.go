package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/schema"
	"github.com/cuemby/delta/pkg/txn"
)

var createCmd = &cobra.Command{
	Use:   "create <table-path>",
	Short: "Create a table from a YAML manifest",
	Long: `Create a Delta table from a YAML manifest.

Example manifest:

  name: events
  description: ingestion events
  partitionColumns: [date]
  properties:
    delta.checkpointInterval: "10"
  schema:
    - {name: date, type: string}
    - {name: id, type: long}
    - {name: payload, type: string, nullable: true}`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringP("file", "f", "", "YAML manifest (required)")
	_ = createCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(createCmd)
}

// TableManifest is the YAML shape of a table definition
type TableManifest struct {
	Name             string            `yaml:"name"`
	Description      string            `yaml:"description,omitempty"`
	PartitionColumns []string          `yaml:"partitionColumns,omitempty"`
	Properties       map[string]string `yaml:"properties,omitempty"`
	Schema           []ManifestField   `yaml:"schema"`
}

// ManifestField is one schema column in a manifest
type ManifestField struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable *bool  `yaml:"nullable,omitempty"`
}

func runCreate(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	var manifest TableManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse YAML: %v", err)
	}
	if len(manifest.Schema) == 0 {
		return fmt.Errorf("manifest defines no schema")
	}

	st := schema.StructType{}
	for _, f := range manifest.Schema {
		nullable := true
		if f.Nullable != nil {
			nullable = *f.Nullable
		}
		st.Fields = append(st.Fields, schema.StructField{
			Name:     f.Name,
			Type:     schema.PrimitiveType(f.Type),
			Nullable: nullable,
		})
	}
	schemaJSON, err := st.ToJSON()
	if err != nil {
		return err
	}

	registry := newRegistry()
	defer registry.Close()
	dl, err := registry.Open(args[0])
	if err != nil {
		return err
	}

	md := action.NewMetadata(manifest.Name, schemaJSON, manifest.PartitionColumns, manifest.Properties)
	md.Description = manifest.Description
	snap, err := txn.CreateTable(dl, md, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Created table %s at version %d\n", manifest.Name, snap.Version())
	return nil
}
