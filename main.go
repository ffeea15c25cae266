// ftpgate - an FTP gateway: one-shot FTP commands or an HTTP façade.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ftpgate/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ftpgate: %v\n", err)
		os.Exit(1)
	}
}
