package cmd

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"ftpgate/config"
	"ftpgate/internal/registry"
)

// readPassword prompts on stderr and reads without echo.
var readPassword = func(prompt string) (string, error) { //nolint:gochecknoglobals
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return string(b), err
}

// runAddUser prompts twice for a password and stores the new user.
func runAddUser(cfg *config.Config, stdout io.Writer) error {
	pass, err := readPassword(fmt.Sprintf("Password for %s: ", cfg.AddUser))
	if err != nil {
		return fmt.Errorf("password prompt: %w", err)
	}
	again, err := readPassword("Repeat password: ")
	if err != nil {
		return fmt.Errorf("password prompt: %w", err)
	}
	if pass != again {
		return fmt.Errorf("passwords do not match")
	}

	if err := registry.NewUsers(cfg.UsersFile).Add(cfg.AddUser, pass); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "user %s added to %s\n", cfg.AddUser, cfg.UsersFile)
	return nil
}
