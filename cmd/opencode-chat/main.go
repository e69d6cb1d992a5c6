package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Shahfarzane/opencode-mobile-sub000/internal/config"
	"github.com/Shahfarzane/opencode-mobile-sub000/internal/mock"
	"github.com/Shahfarzane/opencode-mobile-sub000/internal/tui"
	"github.com/Shahfarzane/opencode-mobile-sub000/opencode"
)

func main() {
	serverURL := flag.String("server", "", "Server URL (overrides config)")
	useMock := flag.Bool("mock", false, "Run against an in-process mock server")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}

	if *useMock {
		srv := mock.NewServer()
		url, err := srv.Start()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error starting mock server: %v\n", err)
			os.Exit(1)
		}
		defer srv.Stop()
		cfg.ServerURL = url
		cfg.AuthToken = ""
	}

	logger := opencode.NewLoggerFromEnv()

	if err := tui.Run(cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
