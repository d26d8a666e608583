package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"folio/internal/content"
	"folio/internal/editor"
	"folio/internal/upload"
	"folio/internal/visit"
)

func (c *CLI) exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every override to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(_ context.Context, s *editor.Session) error {
				doc := s.Bridge().Export()
				data, err := doc.Marshal()
				if err != nil {
					return fmt.Errorf("marshal export: %w", err)
				}
				if out == "-" {
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return nil
				}
				path := out
				if path == "" {
					path = content.ExportFilename(doc.ExportedAt)
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("writing export to %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", `output file ("-" for stdout)`)
	return cmd
}

func (c *CLI) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace overrides with the valid parts of an export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFileArg(args[0])
			if err != nil {
				return err
			}
			return c.withSession(cmd, func(ctx context.Context, s *editor.Session) error {
				imp, err := s.Bridge().Import(ctx, data)
				if err != nil {
					return err
				}
				var parts []string
				if imp.HasContent() {
					parts = append(parts, "content")
				}
				if imp.HasStyles() {
					parts = append(parts, "styles")
				}
				if imp.HasSections() {
					parts = append(parts, "sections")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s\n", strings.Join(parts, ", "))
				return nil
			})
		},
	}
}

func (c *CLI) resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard every override and restore the default sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset discards all edits; pass --yes to confirm")
			}
			return c.withSession(cmd, func(ctx context.Context, s *editor.Session) error {
				if err := s.Bridge().Reset(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All edits reset.")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func (c *CLI) visitsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "visits",
		Short: "List recent visitor log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(ctx context.Context, s *editor.Session) error {
				entries, err := s.Visits(ctx, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tPATH\tDEVICE\tLOCATION\tIP")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						e.Timestamp.Local().Format(time.DateTime), e.Path, e.Device, e.Location, e.IP)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", visit.DefaultLimit, "number of entries")
	return cmd
}

func (c *CLI) uploadCmd() *cobra.Command {
	var provider, path string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image and print its URL",
		Long: `Upload an image through the server's provider chain and print its URL.
With --set the URL is also stored at the given content path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFileArg(args[0])
			if err != nil {
				return err
			}
			img := upload.Image{Name: filepath.Base(args[0]), Data: data}
			return c.withSession(cmd, func(ctx context.Context, s *editor.Session) error {
				result, err := s.Upload(ctx, img, provider)
				if err != nil {
					return err
				}
				if path != "" {
					s.Store().Set(path, content.Text(result.URL))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", result.URL, result.Provider)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", `preferred provider ("base64" keeps the image inline)`)
	cmd.Flags().StringVar(&path, "set", "", "content path to store the URL at")
	return cmd
}
