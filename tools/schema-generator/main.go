// schema-generator writes the JSON Schema for storymap.yml.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/storymap/config"
)

func main() {
	out := flag.String("o", "schema/storymap.schema.json", "output path")
	flag.Parse()

	schemaBytes, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}
	if err := os.WriteFile(*out, schemaBytes, 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}

	log.Printf("Successfully generated schema at %s", *out)
}
