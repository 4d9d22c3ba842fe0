// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Command gen-schema writes the seed file JSON Schema.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cheatgate/cheatgate/internal/seed"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gen-schema", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", filepath.Join("schemas", "seed.schema.json"), "output path")
	check := fs.Bool("check", false, "fail if the file at -out is stale instead of writing it")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	schema, err := seed.GenerateSchema()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating schema: %v\n", err)
		return 1
	}
	schema = append(schema, '\n')

	if *check {
		current, err := os.ReadFile(*out)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading %s: %v\n", *out, err)
			return 1
		}
		if !bytes.Equal(current, schema) {
			fmt.Fprintf(stderr, "%s is stale; run gen-schema\n", *out)
			return 1
		}
		fmt.Fprintf(stdout, "%s is up to date\n", *out)
		return 0
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o750); err != nil {
		fmt.Fprintf(stderr, "Error creating directory: %v\n", err)
		return 1
	}
	if err := os.WriteFile(*out, schema, 0o600); err != nil {
		fmt.Fprintf(stderr, "Error writing file: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Generated %s\n", *out)
	return 0
}
