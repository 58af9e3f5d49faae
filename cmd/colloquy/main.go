package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/colloquy/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	if os.Getenv("COLLOQUY_AUTORESTART") != "" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "colloquy:", err)
		os.Exit(1)
	}
}
