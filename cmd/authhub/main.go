package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/pysugar/llm-auth-hub/internal/version"
)

var cli CLI

func main() {
	ctx := kong.Parse(
		&cli,
		kong.UsageOnError(),
		kong.Name("authhub"),
		kong.Description("Manages OAuth credentials for Antigravity, Codex and Copilot backends"),
		kong.Vars{"version": fmt.Sprintf("authhub %s (commit %s, built %s)", version.Version, version.Commit, version.BuildTime)},
	)

	app, err := newApp(cli.ConfigDir)
	ctx.FatalIfErrorf(err)
	defer app.Close()

	// See respective commands Run() methods
	ctx.FatalIfErrorf(ctx.Run(app))
}
