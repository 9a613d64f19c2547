package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notesync",
	Short: "note consistency service and tools",
	Example: `notesync serve
notesync db migrate
notesync context set --url http://localhost:4020 --user <user-id>
notesync note create -t <title> -c <content> --tag q1 --tag launch
notesync note list -l 20
notesync tags audit --owner <user-id>
notesync tags repair
notesync token issue -n <note-id> -o <owner-id> -f <file-id>`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(contextCommand)
	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}
