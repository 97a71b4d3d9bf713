package main

import (
	"github.com/alecthomas/kong"

	"github.com/quillvault/syncwire/internal/cli"
)

// version is set by ldflags on release builds.
var version = "dev"

func main() {
	cliObj := &cli.CLI{}
	ctx := kong.Parse(cliObj, kong.Vars{
		"version": version,
	})

	ctx.FatalIfErrorf(ctx.Run(cliObj, version))
}
