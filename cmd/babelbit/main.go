package main

import (
	"os"

	"github.com/0xShonen/babelbit-subnet/cmd/babelbit/commands"
)

func main() {
	root := commands.NewRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
