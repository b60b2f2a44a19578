package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/dataimport/internal/config"
	"github.com/Iron-Ham/dataimport/internal/request"
	"github.com/Iron-Ham/dataimport/internal/resolve"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <key>...",
	Short: "Print the URI each module key resolves to",
	Long: `Resolve module keys using the configured aliases, nonce, and document
location, and print one "key -> uri" line per key.

Examples:
  dataimport resolve ./widgets/clock.mjs
  dataimport resolve '%assets%/chart.mjs' --location 'https://example.test/?debug=1'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

var (
	resolveNonce    string
	resolveLocation string
)

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVar(&resolveNonce, "nonce", "", "override resolve.nonce")
	resolveCmd.Flags().StringVar(&resolveLocation, "location", "", "override resolve.location")
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	rc := cfg.Resolve.ResolverConfig()
	if cmd.Flags().Changed("nonce") {
		rc.Nonce = resolveNonce
	}
	if cmd.Flags().Changed("location") {
		rc.Location = resolveLocation
	}

	resolver, err := resolve.New(rc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, arg := range args {
		fmt.Fprintf(out, "%s -> %s\n", arg, resolver.Resolve(request.Key(arg)))
	}
	return nil
}
