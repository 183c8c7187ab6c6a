package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/darkangelpraha/dropindex/internal/cli"
	"github.com/darkangelpraha/dropindex/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("dropindex\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		os.Exit(0)
	}

	// cancelling the context lets a run flush its summary before exit
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
