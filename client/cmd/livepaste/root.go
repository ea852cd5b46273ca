package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/livepaste/livepaste/client/internal/rest"
)

const (
	serverKey   = "server"
	languageKey = "language"
	verboseKey  = "verbose"

	defaultServer = "http://localhost:3001"
)

func newRootCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()

	root := &cobra.Command{
		Use:           "livepaste",
		Short:         "Create, read and follow live snippets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(v, cfgFile); err != nil {
				return err
			}
			level := slog.LevelWarn
			if v.GetBool(verboseKey) {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.livepaste.yaml)")
	pf.String("server", defaultServer, "livepaste server base URL")
	pf.BoolP("verbose", "v", false, "log connection details to stderr")
	v.BindPFlag(serverKey, pf.Lookup("server"))   //nolint:errcheck
	v.BindPFlag(verboseKey, pf.Lookup("verbose")) //nolint:errcheck
	v.SetDefault(serverKey, defaultServer)

	root.AddCommand(
		newNewCmd(v),
		newGetCmd(v),
		newRmCmd(v),
		newCheckCmd(v),
		newWatchCmd(v),
		newPushCmd(v),
		newStatsCmd(v),
	)
	return root
}

// loadConfig reads the config file, if any, and LIVEPASTE_* environment
// variables. A missing default config file is not an error.
func loadConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("livepaste")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigName(".livepaste")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func client(v *viper.Viper) *rest.Client {
	return rest.New(v.GetString(serverKey))
}

// readContent returns the named file, or stdin when no file or "-" is given.
func readContent(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// languageFor picks the explicit flag, then the configured default, then a
// guess from the file extension.
func languageFor(v *viper.Viper, flag string, args []string) string {
	if flag != "" {
		return flag
	}
	if l := v.GetString(languageKey); l != "" {
		return l
	}
	if len(args) > 0 {
		switch strings.ToLower(filepath.Ext(args[0])) {
		case ".go":
			return "go"
		case ".py":
			return "python"
		case ".rs":
			return "rust"
		case ".ts", ".tsx":
			return "typescript"
		case ".js", ".jsx":
			return "javascript"
		case ".sh":
			return "bash"
		case ".md":
			return "markdown"
		case ".json":
			return "json"
		case ".yaml", ".yml":
			return "yaml"
		}
	}
	return ""
}
