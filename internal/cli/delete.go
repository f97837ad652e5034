package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lgtmagic/internal/domain"
)

func newDeleteCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name|url>",
		Short: "Remove an image from the gallery (admin)",
		Long: `Remove an image from the gallery after verifying the admin password.

The password is read from standard input: typed at a hidden prompt on a
terminal, or piped (echo "$PW" | lgtmctl delete ...).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.services(ctx)
			if err != nil {
				return err
			}

			password, err := readPassword(cmd)
			if err != nil {
				return err
			}

			ok, err := a.Services.Admin.Verify(ctx, password)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("invalid admin password")
			}

			name, err := a.Services.Gallery.Delete(ctx, args[0])
			if err != nil {
				if errors.Is(err, domain.ErrValidation) {
					return fmt.Errorf("%q is not an image name or url: %w", args[0], err)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
			return nil
		},
	}

	return cmd
}

// readPassword never takes the secret from argv, where shell history and
// the process list would expose it.
func readPassword(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Admin password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return requirePassword(string(raw))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return requirePassword(strings.TrimRight(line, "\r\n"))
}

func requirePassword(pw string) (string, error) {
	if pw == "" {
		return "", errors.New("admin password is required on standard input")
	}
	return pw, nil
}
