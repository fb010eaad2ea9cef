package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
