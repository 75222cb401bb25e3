package main

import (
	"fmt"
	"os"

	"github.com/ToFut/Tredy-sub001/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
