package main

import (
	"os"

	"recordbook/cli"
)

func main() {
	os.Exit(cli.Execute())
}
