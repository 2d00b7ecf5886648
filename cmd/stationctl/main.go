package main

import (
	"os"

	"github.com/relabs-tech/eink_station/cmd/stationctl/commands"
)

var version = "dev"

func main() {
	commands.SetVersion(version)

	// Errors are printed by the commands themselves.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
