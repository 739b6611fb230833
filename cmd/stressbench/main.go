package main

import (
	"os"

	"github.com/stressbench/stressbench/cmd/stressbench/cmd"
	"github.com/stressbench/stressbench/internal/common"
)

// Config is handled by cmd/params.go
func main() {
	common.ConfigureCommandLineLogging()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
