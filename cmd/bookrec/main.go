package main

import (
	"os"
)

func main() {
	cmd := NewBookrecCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
