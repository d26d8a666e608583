package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"folio/internal/auth"
	"folio/internal/editor"
	"folio/internal/gate"
)

func (c *CLI) unlockCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Enter the editor password to enable remote sync",
		Long: `Enter the editor password. The password is read from --password or the
first line of standard input, and cached locally until "folio lock".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			candidate := password
			if candidate == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password given")
				}
				candidate = strings.TrimRight(line, "\r\n")
			}
			return c.withSession(cmd, func(ctx context.Context, s *editor.Session) error {
				err := s.Unlock(ctx, candidate)
				var incorrect *gate.IncorrectError
				switch {
				case err == nil:
					fmt.Fprintln(cmd.OutOrStdout(), "Unlocked.")
					return nil
				case errors.As(err, &incorrect):
					return fmt.Errorf("incorrect password, %d attempts remaining", incorrect.Remaining)
				case errors.Is(err, gate.ErrLockedOut):
					return fmt.Errorf("too many failed attempts, try again in %s", s.Gate().RetryAfter().Round(time.Second))
				default:
					return err
				}
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "editor password")
	return cmd
}

func (c *CLI) lockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Forget the cached editor password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(ctx context.Context, s *editor.Session) error {
				if err := s.Lock(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Locked.")
				return nil
			})
		},
	}
}

func (c *CLI) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session, gate and sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(_ context.Context, s *editor.Session) error {
				out := cmd.OutOrStdout()
				snap := s.Store().Snapshot()
				fmt.Fprintf(out, "gate:      %s\n", s.Gate().State())
				if credential := s.Gate().Credential(); credential != "" {
					fmt.Fprintf(out, "key:       %s\n", auth.Fingerprint(credential))
				}
				fmt.Fprintf(out, "edit mode: %t\n", s.EditMode())
				fmt.Fprintf(out, "sync:      %s\n", s.Bridge().Status())
				if saved := s.Bridge().LastSaved(); !saved.IsZero() {
					fmt.Fprintf(out, "saved:     %s\n", saved.Format(time.RFC3339))
				}
				fmt.Fprintf(out, "overrides: %d text, %d style, %d sections\n",
					len(snap.Content), len(snap.Styles), len(snap.Sections))
				return nil
			})
		},
	}
}

func (c *CLI) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Save the current state to the content API now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(ctx context.Context, s *editor.Session) error {
				if err := s.EnterEditMode(); err != nil {
					return fmt.Errorf("%w: run \"folio unlock\" first", err)
				}
				if err := s.Bridge().SyncNow(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Synced at %s\n", s.Bridge().LastSaved().Format(time.RFC3339))
				return nil
			})
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for EDIT_MODE_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
