// Package cli is the folio command line: an editing session over the local
// store, synced to the content API when a credential is held.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"folio/internal/auth"
	"folio/internal/config"
	"folio/internal/editor"
	"folio/internal/localstore"
	"folio/internal/logging"
	"folio/internal/remote"
)

// Version is set via ldflags at build time.
var Version = "dev"

// SessionFactory builds an unopened editor session and the function that
// releases its resources.
type SessionFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger, offline bool) (*editor.Session, func() error, error)

type CLI struct {
	cfgFile string
	verbose bool
	offline bool

	loadConfig  func(path string) (config.Config, error)
	openSession SessionFactory
	logger      *zap.Logger
}

// New returns a CLI wired to the real config loader and local store.
func New() *CLI {
	return &CLI{loadConfig: config.Load, openSession: OpenSession}
}

// WithSessionFactory replaces how sessions are opened.
func (c *CLI) WithSessionFactory(factory SessionFactory) *CLI {
	c.openSession = factory
	return c
}

// WithConfigLoader replaces how configuration is read.
func (c *CLI) WithConfigLoader(load func(path string) (config.Config, error)) *CLI {
	c.loadConfig = load
	return c
}

func Execute() error {
	return New().Command().Execute()
}

func (c *CLI) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "folio",
		Short: "Edit portfolio content overrides",
		Long: `folio edits the text, style and section overrides layered over a
portfolio's built-in content. Edits are kept in a local store and, once
unlocked, synced to the content API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if c.verbose {
				level = "debug"
			}
			logger, err := logging.New(level, true)
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "folio.yml", "config file path")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVar(&c.offline, "offline", false, "do not contact the content API")

	root.AddCommand(
		c.showCmd(),
		c.getCmd(),
		c.setCmd(),
		c.styleCmd(),
		c.sectionsCmd(),
		c.unlockCmd(),
		c.lockCmd(),
		c.statusCmd(),
		c.syncCmd(),
		c.exportCmd(),
		c.importCmd(),
		c.resetCmd(),
		c.visitsCmd(),
		c.uploadCmd(),
		hashPasswordCmd(),
		versionCmd(),
	)
	return root
}

// OpenSession opens the SQLite local store and, unless offline, a client
// for the content API.
func OpenSession(_ context.Context, cfg config.Config, logger *zap.Logger, offline bool) (*editor.Session, func() error, error) {
	backend, err := localstore.OpenSQLite(cfg.LocalDB)
	if err != nil {
		return nil, nil, err
	}
	checker, err := auth.NewVerifier(cfg.EditorPassword, cfg.EditorPasswordHash)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}

	var rem editor.Remote
	if !offline && cfg.APIURL != "" {
		rem = remote.NewClient(cfg.APIURL, nil)
	}
	session := editor.New(backend, rem, checker, editor.Options{
		LocalDelay:  cfg.LocalDelay,
		RemoteDelay: cfg.RemoteDelay,
		Logger:      logger,
	})
	return session, backend.Close, nil
}

// withSession opens a session, runs fn and closes the session, which flushes
// every pending local write and remote save.
func (c *CLI) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *editor.Session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := c.loadConfig(c.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	session, release, err := c.openSession(ctx, cfg, logger, c.offline)
	if err != nil {
		return err
	}
	source := session.Open(ctx)
	logger.Debug("session loaded", zap.String("source", string(source)))
	if session.Gate().Unlocked() {
		_ = session.EnterEditMode()
	}

	runErr := fn(ctx, session)
	closeErr := session.Close(ctx)
	if closeErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", closeErr)
	}
	return errors.Join(runErr, release())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of folio",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "folio %s\n", Version)
		},
	}
}

func readFileArg(path string) ([]byte, error) {
	if path == "-" {
		return nil, errors.New("reading from stdin is not supported here")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
