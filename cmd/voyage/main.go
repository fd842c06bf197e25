package main

import (
	"fmt"
	"os"

	"github.com/RazK/Voyage-Voyage/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "voyage: %v\n", err)
		os.Exit(1)
	}
}
