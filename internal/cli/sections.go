package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"folio/internal/content"
	"folio/internal/editor"
)

func (c *CLI) sectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sections",
		Short: "List and arrange page sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(_ context.Context, s *editor.Session) error {
				printSections(cmd, s.Store().Sections())
				return nil
			})
		},
	}

	cmd.AddCommand(
		c.sectionEdit("up <id>", "Move a section one place earlier", 1, func(s *content.Store, args []string) error {
			s.Reorder(args[0], content.Up)
			return nil
		}),
		c.sectionEdit("down <id>", "Move a section one place later", 1, func(s *content.Store, args []string) error {
			s.Reorder(args[0], content.Down)
			return nil
		}),
		c.sectionEdit("move <from> <to>", "Move the section at position from to position to (1-based)", 2, func(s *content.Store, args []string) error {
			from, err := position(args[0])
			if err != nil {
				return err
			}
			to, err := position(args[1])
			if err != nil {
				return err
			}
			s.MoveSection(from, to)
			return nil
		}),
		c.sectionEdit("toggle <id>", "Show or hide a section", 1, func(s *content.Store, args []string) error {
			s.ToggleVisibility(args[0])
			return nil
		}),
		c.sectionEdit("remove <id>", "Remove a section", 1, func(s *content.Store, args []string) error {
			s.RemoveSection(args[0])
			return nil
		}),
		c.sectionAddCmd(),
	)
	return cmd
}

// sectionEdit builds a subcommand that applies edit and prints the result.
func (c *CLI) sectionEdit(use, short string, nargs int, edit func(*content.Store, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(_ context.Context, s *editor.Session) error {
				if err := edit(s.Store(), args); err != nil {
					return err
				}
				printSections(cmd, s.Store().Sections())
				return nil
			})
		},
	}
}

func (c *CLI) sectionAddCmd() *cobra.Command {
	var icon string
	cmd := &cobra.Command{
		Use:   "add <id> <name>",
		Short: "Append a visible section",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(_ context.Context, s *editor.Session) error {
				before := len(s.Store().Sections())
				s.Store().AddSection(content.Section{ID: args[0], Name: args[1], Icon: icon})
				if len(s.Store().Sections()) == before {
					return fmt.Errorf("section %q was rejected", args[0])
				}
				printSections(cmd, s.Store().Sections())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&icon, "icon", "", "icon shown next to the section name")
	return cmd
}

func position(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid position %q", arg)
	}
	return n - 1, nil
}

func printSections(cmd *cobra.Command, sections []content.Section) {
	for i, sec := range sections {
		mark := "x"
		if !sec.Visible {
			mark = " "
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%2d. [%s] %-18s %s\n", i+1, mark, sec.ID, sec.Name)
	}
}
