package main

import "aira/internal/cli"

// Version is set via -ldflags during build
var Version = "dev"

func main() {
	cli.Execute(Version)
}
