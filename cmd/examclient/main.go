package main

import (
	"context"
	"os"

	"github.com/stemsi/exstem-session/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
