package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"bitesbytes/internal/cli"
)

var (
	// Version is set via ldflags when building.
	Version = "dev"

	app struct {
		Version kong.VersionFlag `help:"Show version information."`
		cli.Commands
	}
)

func main() {
	ctx := kong.Parse(&app,
		kong.Vars{"version": Version},
		kong.Name("bites"),
		kong.Description("Record bakery income and expenses and print reports."),
		kong.UsageOnError(),
		kong.Bind(&app.Globals),
	)

	err := ctx.Run()
	if err != nil {
		err = fmt.Errorf("bites %s: %w", ctx.Command(), err)
	}
	ctx.FatalIfErrorf(err)
}
