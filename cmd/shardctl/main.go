// Package main is the single-binary entrypoint for shardctl: one binary
// that is itself the CLI, the HTTP server, the coordinator and every
// worker, distinguished only by the subcommand it is re-exec'd with.
package main

import "github.com/Mevan-Solanga/distributed-training-system/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
