// Package main provides the TUI entry point for hostline-siem
package main

import (
	"flag"
	"fmt"
	"os"

	"hostline-siem/internal/tui"
)

var (
	version = "dev"
)

func main() {
	var (
		showVersion bool
		serverURL   string
	)

	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.BoolVar(&showVersion, "v", false, "Show version and exit (shorthand)")
	flag.StringVar(&serverURL, "server", "http://localhost:8080", "hostline-siem server URL")
	flag.StringVar(&serverURL, "s", "http://localhost:8080", "hostline-siem server URL (shorthand)")
	flag.Parse()

	if showVersion {
		fmt.Printf("hostline-siem %s\n", version)
		os.Exit(0)
	}

	fmt.Println("Starting hostline-siem TUI...")
	fmt.Printf("Connecting to: %s\n", serverURL)

	if err := tui.Run(serverURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
