package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Build-time variables for version info
var (
	// Release is the current release version
	Release = "dev"
	// GitCommit is the git commit hash
	GitCommit = "none"
	// GOOS is the operating system
	GOOS = runtime.GOOS
	// GOARCH is the architecture
	GOARCH = runtime.GOARCH
)

// userAgent identifies this build to the platform.
func userAgent() string {
	return fmt.Sprintf("seriesgraph/%s (%s/%s)", Release, GOOS, GOARCH)
}

//nolint:gochecknoglobals // Cobra commands are typically global
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version of seriesgraph.",
	Long:  `Prints the version of seriesgraph and the user agent it sends to the platform.`,
	Run: func(cmd *cobra.Command, _ []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\nCommit: %s\nOS/Arch: %s/%s\nUser-Agent: %s\n",
			Release, GitCommit, GOOS, GOARCH, userAgent())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
