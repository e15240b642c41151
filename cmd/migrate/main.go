// migrate applies the embedded Postgres schema (token store and session events); run with go run ./cmd/migrate.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"authsession/internal/config"
	"authsession/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", migrate.DirectionUp, "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; export it or add it to .env")
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}

	version, dirty, ok, err := migrate.Version(cfg.DatabaseURL)
	switch {
	case err != nil:
		fmt.Fprintln(os.Stderr, "migrate: version:", err)
		os.Exit(1)
	case !ok:
		fmt.Println("schema: empty")
	case dirty:
		fmt.Printf("schema: version %d (dirty)\n", version)
	default:
		fmt.Printf("schema: version %d\n", version)
	}
}
