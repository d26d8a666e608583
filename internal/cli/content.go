package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"folio/internal/content"
	"folio/internal/editor"
)

func (c *CLI) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print every override as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(_ context.Context, s *editor.Session) error {
				snap := s.Store().Snapshot()
				snap.UpdatedAt = s.Bridge().LastSaved()
				data, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			})
		},
	}
}

func (c *CLI) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Print the override at a content path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(_ context.Context, s *editor.Session) error {
				value := s.Store().Get(args[0], content.Value{})
				switch value.Kind() {
				case content.KindNone:
					return fmt.Errorf("no override at %s", args[0])
				case content.KindText:
					fmt.Fprintln(cmd.OutOrStdout(), value.String())
				case content.KindTags:
					fmt.Fprintln(cmd.OutOrStdout(), strings.Join(value.TagList(), ", "))
				default:
					data, err := json.Marshal(value)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
				}
				return nil
			})
		},
	}
}

func (c *CLI) setCmd() *cobra.Command {
	var tags bool
	cmd := &cobra.Command{
		Use:   "set <path> <value>...",
		Short: "Override the text at a content path",
		Long: `Override the text at a content path. With --tags the value is split on
commas into a tag list.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, text := args[0], strings.Join(args[1:], " ")
			value := content.Text(text)
			if tags {
				var list []string
				for _, tag := range strings.Split(text, ",") {
					if tag = strings.TrimSpace(tag); tag != "" {
						list = append(list, tag)
					}
				}
				value = content.Tags(list...)
			}
			return c.withSession(cmd, func(_ context.Context, s *editor.Session) error {
				s.Store().Set(path, value)
				if !s.Store().Get(path, content.Value{}).Equal(value) {
					return fmt.Errorf("override at %s was rejected", path)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&tags, "tags", false, "store a comma separated tag list")
	return cmd
}

func (c *CLI) styleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "style <path> [attribute=value]...",
		Short: "Print or change the style override at a content path",
		Long: `Without attributes, prints the style override at path. Each
attribute=value pair is merged into it; an empty value removes the attribute.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			return c.withSession(cmd, func(_ context.Context, s *editor.Session) error {
				style := s.Store().Style(path)
				if len(args) == 1 {
					printStyle(cmd, style)
					return nil
				}
				for _, pair := range args[1:] {
					key, value, ok := strings.Cut(pair, "=")
					key = strings.TrimSpace(key)
					if !ok || key == "" {
						return fmt.Errorf("expected attribute=value, got %q", pair)
					}
					if value == "" {
						delete(style, key)
						continue
					}
					style[key] = content.ParseStyleValue(value)
				}
				s.Store().SetStyle(path, style)
				printStyle(cmd, s.Store().Style(path))
				return nil
			})
		},
	}
}

func printStyle(cmd *cobra.Command, style content.StyleMap) {
	keys := make([]string, 0, len(style))
	for key := range style {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", key, style.Text(key))
	}
}
