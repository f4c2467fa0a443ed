package main

import (
	"os"

	"github.com/tanpawarit/clubhouse/cmd"
	_ "github.com/tanpawarit/clubhouse/pkg/logger/autoload"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
