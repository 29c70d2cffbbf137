package main

import (
	"os"

	"github.com/ellenzeng3/lda-filing-bot/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
