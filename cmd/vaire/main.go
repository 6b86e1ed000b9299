package main

import (
	"github.com/awm/vaire-cfg/internal/cmd"
)

// Set by the build process using ldflags.
var (
	version = "unknown"
	commit  = "unknown"
)

func main() {
	cmd.Execute(version, commit)
}
