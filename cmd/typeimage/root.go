package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/maruel/typeimage/internal/config"
)

const (
	keyConfigFile = "config"
	keyLogLevel   = "log_level"
	// skipConfig marks commands that run without the collection.
	skipConfig = "skip-config"
)

type cli struct {
	v   *viper.Viper
	ll  *slog.LevelVar
	cfg *config.Config
}

func newRootCmd(v *viper.Viper, ll *slog.LevelVar) *cobra.Command {
	c := &cli{v: v, ll: ll}
	root := &cobra.Command{
		Use:           "typeimage",
		Short:         "Manage a word and image flashcard collection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] != "" {
				return nil
			}
			cfg, err := config.Load(v, v.GetString(keyConfigFile))
			if err != nil {
				return err
			}
			if err := setLogLevel(ll, v.GetString(keyLogLevel)); err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.String("data-dir", "", "Data directory (default: user config directory)")
	pf.String("native-dir", "", "Store images as plain files in this directory")
	pf.String("platform", "", "Device class deciding the auto-backup destination: auto, desktop or mobile")
	pf.String("config", "", "Config file (default: <data-dir>/config.yaml)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	bindFlagToViper(v, config.KeyDataDir, pf.Lookup("data-dir"))
	bindFlagToViper(v, config.KeyNativeDir, pf.Lookup("native-dir"))
	bindFlagToViper(v, config.KeyPlatform, pf.Lookup("platform"))
	bindFlagToViper(v, keyConfigFile, pf.Lookup("config"))
	bindFlagToViper(v, keyLogLevel, pf.Lookup("log-level"))

	root.AddCommand(
		c.wordsCmd(),
		c.categoriesCmd(),
		c.settingsCmd(),
		c.backupCmd(),
		c.importCmd(),
		c.autobackupCmd(),
		c.gcCmd(),
		c.schemaCmd(),
		c.serveCmd(),
		versionCmd(),
	)
	return root
}

// bindFlagToViper binds a flag to a key. Unset flags leave the key to the
// config file, the environment or the default.
func bindFlagToViper(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	cobra.CheckErr(v.BindPFlag(key, flag))
}

// run opens the collection around fn.
func (c *cli) run(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		a, err := openApp(ctx, c.cfg)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(context.WithoutCancel(ctx)); err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args, a)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version and exit",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "1"},
		Run: func(cmd *cobra.Command, _ []string) {
			version, goVersion, revision, dirty := getBuildInfo()
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "typeimage %s\n", version)
			_, _ = fmt.Fprintf(w, "  Go version: %s\n", goVersion)
			_, _ = fmt.Fprintf(w, "  Revision:   %s\n", revision)
			if dirty {
				_, _ = fmt.Fprintf(w, "  Modified:   true\n")
			}
		},
	}
}
