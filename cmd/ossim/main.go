package main

import (
	"fmt"
	"os"

	"github.com/tebeka/atexit"

	"github.com/me/ossim/internal/cli"
)

func main() {
	err := cli.NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	atexit.Exit(cli.ExitCode(err))
}
