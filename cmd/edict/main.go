package main

import (
	"fmt"
	"os"
)

func main() {
	app := newEdictCli(os.Stdout, os.Stderr)
	if err := app.run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "edict: %v\n", err)
		os.Exit(1)
	}
}
