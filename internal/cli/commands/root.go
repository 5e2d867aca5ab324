package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/absfs/branchfs"
	"github.com/absfs/branchfs/internal/config"
	"github.com/absfs/branchfs/internal/logging"
)

var (
	version = "dev"

	dirsFlag     string
	configFlag   string
	logLevelFlag string

	// set by PersistentPreRunE
	cfg      *config.Config
	log      *logrus.Logger
	resolver *branchfs.Resolver
)

// SetVersion sets the version reported by --version
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "branchctl",
	Short: "Inspect and modify a stack of union branches",
	Long: `Operate on the merged view of a stack of branch directories.

Branches are listed highest priority first, either with --dirs or in the
branches section of a YAML config file:

  branchctl --dirs /srv/upper=rw:/srv/lower=ro ls /etc

Deleting a name held by a lower branch leaves a whiteout (.wh.<name>) in an
upper branch. Recreating a whited-out directory makes it opaque.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.LoadOrDefault(configFlag)
		if err != nil {
			return err
		}
		if dirsFlag != "" {
			if err := cfg.SetBranches(dirsFlag); err != nil {
				return fmt.Errorf("invalid --dirs: %w", err)
			}
		}
		level := cfg.Logging.Level
		if logLevelFlag != "" {
			level = logLevelFlag
		}
		log, err = logging.New(cmd.ErrOrStderr(), level, cfg.Logging.Format)
		if err != nil {
			return err
		}

		// whname only needs the codec
		if cmd.Name() == "whname" {
			return nil
		}
		resolver, err = openResolver(cfg, log)
		return err
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("branchctl version {{.Version}}\n")
	rootCmd.Version = version

	rootCmd.PersistentFlags().StringVar(&dirsFlag, "dirs", "", "branch list, e.g. /upper=rw:/lower=ro")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (trace, debug, info, warn, error)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// openResolver builds a resolver over the configured branch directories.
func openResolver(cfg *config.Config, log *logrus.Logger) (*branchfs.Resolver, error) {
	if len(cfg.Branches) == 0 {
		return nil, errors.New("no branches configured (use --dirs or --config)")
	}
	umask, err := cfg.UmaskMode()
	if err != nil {
		return nil, err
	}

	opts := []branchfs.Option{
		branchfs.WithLogger(log),
		branchfs.WithMaxNameLen(cfg.MaxNameLen),
		branchfs.WithUmask(umask),
		branchfs.WithLookupRetry(cfg.LookupRetries, cfg.LookupRetryDelay),
	}
	if cfg.NegativeCacheTTL > 0 {
		opts = append(opts, branchfs.WithNegativeCache(cfg.NegativeCacheTTL, cfg.NegativeCacheSize))
	}
	for i, b := range cfg.Branches {
		info, err := os.Stat(b.Path)
		if err != nil {
			return nil, fmt.Errorf("branch %d: %w", i, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("branch %d: %s is not a directory", i, b.Path)
		}
		opts = append(opts, branchfs.WithBranch(branchfs.NewBillyBranch(osfs.New(b.Path)), cfg.ReadOnly(i)))
		log.WithFields(logrus.Fields{
			"branch":   i,
			"path":     b.Path,
			"readonly": cfg.ReadOnly(i),
		}).Debug("branch configured")
	}
	return branchfs.New(opts...), nil
}

