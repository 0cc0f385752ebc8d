package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/huddlehq/huddle/internal/daemon"
	"github.com/huddlehq/huddle/internal/workspace"
)

func main() {
	workspaceFlag := flag.String("workspace", "", "workspace name (overrides config default)")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	name := workspace.Resolve(*workspaceFlag)
	if err := workspace.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Workspace: name, Listen: *listenFlag}),
	)

	app.Run()
}
