package main

import (
	"os"

	"github.com/rvdbg/rvdbg/cmd/rvdbg/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
