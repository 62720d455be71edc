package main

import (
	"github.com/danmuck/i2cmctp/cmd/i2cmctp/commands"
)

// Version and BuildTime are filled in at build time via -ldflags.
var (
	Version   = "N/A"
	BuildTime = "N/A"
)

func main() {
	commands.Version = Version
	commands.BuildTime = BuildTime
	commands.Execute()
}
