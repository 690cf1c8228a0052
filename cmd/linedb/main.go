package main

import (
	"fmt"
	"os"

	"github.com/linedb/pkg/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "linedb:", err)
		os.Exit(1)
	}
}
