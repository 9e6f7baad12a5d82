package main

import (
	"context"
	"log"

	"github.com/sundayezeilo/urlappender/internal/cli"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	// Without a subcommand the server starts (blocks until shutdown)
	return cli.NewRootCommand().ExecuteContext(ctx)
}
