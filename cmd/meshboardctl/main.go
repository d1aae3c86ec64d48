package main

import (
	"flag"
	"fmt"
	"os"

	logs "github.com/danmuck/meshboard/internal/logging"
	"github.com/danmuck/meshboard/internal/meshboard"
)

func main() {
	path := flag.String("config", "", "path to config.toml (defaults apply when empty)")
	flag.Parse()
	logs.ConfigureRuntime()

	cfg := meshboard.DefaultServiceConfig()
	if *path != "" {
		loaded, err := loadServiceConfig(*path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "meshboardctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	svc := meshboard.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "meshboardctl: %v\n", err)
		os.Exit(1)
	}
}
