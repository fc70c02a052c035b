// Command connectorctl validates and runs connector documents offline.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	_ "github.com/JonMunkholm/connectorgw/internal/core/tools" // Register all transforms
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
