package main

import (
	"fmt"
	"os"

	"github.com/bdobrica/Kagami/common/environment"
	"github.com/bdobrica/Kagami/common/version"
	"github.com/bdobrica/Kagami/internal/kagami/app"
	"github.com/bdobrica/Kagami/internal/kagami/config"
	"github.com/bdobrica/Kagami/internal/kagami/observability"
)

func main() {
	fmt.Printf("Kagami Conversational Gateway\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	configPath := environment.StringOr("KAGAMI_CONFIG", "kagami.yaml")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	observability.Setup(cfg.Log.Level, cfg.Log.Format)

	kagami, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Kagami: %v\n", err)
		os.Exit(1)
	}
	defer kagami.Stop()

	if err := kagami.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Kagami: %v\n", err)
		os.Exit(1)
	}
}
