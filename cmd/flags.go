package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// checkMissingFlags reports whether any required flag is unset, printing the missing ones.
func checkMissingFlags(cmd *cobra.Command, flags []string) bool {
	var missingFlags []string
	var providedFlags []string
	for _, required := range flags {
		if !cmd.Flag(required).Changed {
			missingFlags = append(missingFlags, "--"+required)
		} else {
			value := cmd.Flag(required).Value.String()
			providedFlags = append(providedFlags, fmt.Sprintf("--%s=%s", required, value))
		}
	}

	if len(missingFlags) == 0 {
		return false
	}

	color.Red("missing: %s\n", strings.Join(missingFlags, " "))
	if len(providedFlags) > 0 {
		color.Green("provided: %s\n", strings.Join(providedFlags, " "))
	}
	cmd.Println("")
	_ = cmd.Usage()

	return true
}
