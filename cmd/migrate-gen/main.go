// Command migrate-gen generates the SQL file that provisions the migration ledger table.
//
// Usage:
//
//	go run github.com/getpup/pupsourcing-migrator/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/pupsourcing-migrator/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/pupsourcing-migrator/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/pupsourcing-migrator/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/pupsourcing-migrator/cmd/migrate-gen -adapter sqlite -output migrations
//
// Customize the table name:
//
//	go run github.com/getpup/pupsourcing-migrator/cmd/migrate-gen -table app_migrations -output migrations
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/pupsourcing-migrator/ledger"
	"github.com/getpup/pupsourcing-migrator/pkg/migrations"
)

func main() {
	var (
		adapter        = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder   = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		table          = flag.String("table", ledger.DefaultTable, "Name of the ledger table")
		includeDown    = flag.Bool("down", false, "Append the commented-out DROP statement")
	)

	flag.Parse()

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	config.Table = *table
	config.IncludeDown = *includeDown

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	dialect, err := ledger.DialectForDriver(*adapter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := migrations.Generate(dialect, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
