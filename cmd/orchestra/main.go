package main

import (
	"os"

	"github.com/orchestra-dev/orchestra/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
