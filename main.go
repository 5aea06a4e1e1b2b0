package main

import (
	"github.com/castellan/iamcore/cmd/iamctl"
)

// Build-time version metadata, set via -ldflags "-X main.version=... -X main.commit=... -X main.date=... -X main.builtBy=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	cmd.SetVersion(version, commit, date, builtBy)
	cmd.Execute()
}
