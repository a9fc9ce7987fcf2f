package main

import (
	"os"

	"github.com/kraina-ai/quackosm-go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
