package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "signaling-server",
	Short: "WebSocket signaling relay for WebRTC peers",
	Long: `A signaling relay that lets WebRTC peers discover each other inside named
rooms and exchange SDP offers, answers and ICE candidates without the server
inspecting their contents. Full rooms overflow into deterministic sibling
rooms, and a read-only report over all rooms is served for inspection.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
