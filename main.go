package main

import "github.com/relayworks/mailwatch/cmd"

// version is set at build time via -ldflags
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
