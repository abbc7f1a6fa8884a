package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	debug  bool
	apiURL string
	token  string
)

var rootCmd = &cobra.Command{
	Use:   "chatscope",
	Short: "Context-scoped AI chat sessions from the terminal",
	Long: `chatscope drives the context-scoped conversation manager against the
product backend: pick a content item, a collection, or the whole library,
and chat against exactly that slice of your corpus.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (overrides config)")
}
