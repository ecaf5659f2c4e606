package main

import (
	"os"
	"runtime/debug"

	"github.com/mezonai/custody/cmd"
	"github.com/mezonai/custody/logx"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			_ = logx.Errorf("CUSTODY CRASHED: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
