package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dobrovols/vkconfig/internal/cli"
	"github.com/dobrovols/vkconfig/internal/cli/session"
	telemetryinit "github.com/dobrovols/vkconfig/internal/telemetry"
)

var (
	telemetryInit = telemetryinit.InitProvider
	rootCommand   = cli.NewRootCommand
	osExit        = os.Exit
)

func main() {
	if code := run(context.Background(), os.Stderr); code != 0 {
		osExit(code)
	}
}

func run(ctx context.Context, stderr io.Writer) int {
	shutdown, err := telemetryInit(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize telemetry: %v\n", err)
	}
	if shutdown != nil {
		defer func() {
			flushCtx, cancel := context.WithTimeout(ctx, telemetryinit.ShutdownTimeout)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				fmt.Fprintf(stderr, "telemetry shutdown error: %v\n", err)
			}
		}()
	}

	err = rootCommand().ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(stderr, err)
	// Launched applications and workflow failures carry their own code.
	var exitErr *session.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
