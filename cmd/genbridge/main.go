package main

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/genbridge/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "genbridge:", err)
		os.Exit(1)
	}
}
