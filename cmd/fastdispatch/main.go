// Package main provides the entry point for the fastdispatch server.
package main

import "github.com/searchktools/fast-dispatch/cmd/fastdispatch/cmd"

// Version information populated at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.Execute(version, commit, date)
}
