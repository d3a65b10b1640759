// Command migrator applies, rolls back and reports schema migrations.
//
// Usage:
//
//	migrator --config migrator.yaml apply --strategy online
//	migrator apply --dry-run
//	migrator rollback --migration-id 0002_add_column
//	migrator status
//	migrator list
//	migrator new add_orders_index --depends 0001_create_orders
//
// Every setting can be overridden with MIGRATOR_* environment variables,
// e.g. MIGRATOR_DATABASE_DSN.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errMigrationFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
