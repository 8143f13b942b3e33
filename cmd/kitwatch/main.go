package main

import (
	"fmt"
	"os"

	"github.com/m3rciful/kitwatch/core/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kitwatch:", err)
		os.Exit(1)
	}
}
