package main

import (
	"os"

	"scadenze/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
