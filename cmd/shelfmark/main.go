// Shelfmark is a license-gated reading companion. It verifies the user's
// entitlement against the licensing authority on startup and serves the
// bookshelf API and UI on localhost.
package main

import (
	"flag"
	"fmt"
	"os"

	"shelfmark/internal/app"
	"shelfmark/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shelfmark: %v\n", err)
		os.Exit(1)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shelfmark: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "shelfmark: %v\n", err)
		os.Exit(1)
	}
}
