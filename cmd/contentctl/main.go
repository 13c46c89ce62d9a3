package main

import (
	"os"

	"content-agent-service/cmd/contentctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
