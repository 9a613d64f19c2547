package cmd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/emrgen/notesync"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configFileName = "notesync"
	configDir      = "./.tmp"
	defaultURL     = "http://localhost:4020"
)

var contextCommand = &cobra.Command{
	Use:   "context",
	Short: "context commands",
}

func init() {
	contextCommand.AddCommand(setContextCommand())
	contextCommand.AddCommand(currentContextCommand())
	contextCommand.AddCommand(resetContextCommand())
}

// Context is the server and user the client commands act as.
type Context struct {
	URL    string `mapstructure:"url"`
	UserID string `mapstructure:"user"`
}

func setContextCommand() *cobra.Command {
	var ctx Context
	command := &cobra.Command{
		Use:   "set",
		Short: "set context",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"user"}) {
				return
			}

			if err := writeContext(ctx); err != nil {
				color.Red("error writing config file: %v", err)
				return
			}
			color.Green("context saved")
		},
	}

	command.Flags().StringVarP(&ctx.URL, "url", "u", defaultURL, "server url")
	command.Flags().StringVar(&ctx.UserID, "user", "", "user id sent as X-User-Id")

	return command
}

func currentContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "current context",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, err := readContext()
			if err != nil {
				color.Red("%v", err)
				return
			}
			cmd.Printf("url:  %s\nuser: %s\n", ctx.URL, ctx.UserID)
		},
	}
}

func resetContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "reset context",
		Run: func(cmd *cobra.Command, args []string) {
			err := os.Remove(contextPath())
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				color.Red("error removing config file: %v", err)
				return
			}
			color.Green("context reset")
		},
	}
}

func contextPath() string {
	return filepath.Join(configDir, configFileName+".yml")
}

func contextViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(configFileName)
	v.AddConfigPath(configDir)
	v.SetConfigType("yml")
	return v
}

func writeContext(ctx Context) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	v := contextViper()
	v.Set("context.url", ctx.URL)
	v.Set("context.user", ctx.UserID)

	return v.WriteConfigAs(contextPath())
}

func readContext() (Context, error) {
	ctx := Context{URL: defaultURL}

	v := contextViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return ctx, errors.New("no context set, run: notesync context set --user <user-id>")
		}
		return ctx, err
	}

	if err := v.UnmarshalKey("context", &ctx); err != nil {
		return ctx, err
	}
	if ctx.UserID == "" {
		return ctx, errors.New("context has no user, run: notesync context set --user <user-id>")
	}

	return ctx, nil
}

// apiClient returns a client for the saved context.
func apiClient() (*notesync.Client, bool) {
	ctx, err := readContext()
	if err != nil {
		color.Red("%v", err)
		return nil, false
	}

	return notesync.NewClient(ctx.URL, ctx.UserID), true
}
