package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leadforge/leadhooks/internal/auth"
	"github.com/leadforge/leadhooks/internal/webhooks"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hookctl",
	Short: "Operator CLI for the leadhooks webhook engine",
	Long: `hookctl signs and verifies webhook payloads, mints API tokens, and talks
to a running leadhooksd: dispatching events, sending test deliveries and
reading delivery history.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.hookctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("HOOKCTL")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.hookctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "leadhooksd base URL (default http://localhost:8080)")

	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(deliveriesCmd)
	rootCmd.AddCommand(versionCmd)
}

// readPayload reads the file named by args[0], or stdin when absent or "-".
func readPayload(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(args[0])
}

// ── sign / verify ────────────────────────────────────────────────────────────

var (
	signSecret      string
	verifySignature string
)

var signCmd = &cobra.Command{
	Use:   "sign [file|-]",
	Short: "Print the hex HMAC-SHA256 signature of a payload",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := readPayload(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), webhooks.Sign(body, signSecret))
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [file|-]",
	Short: "Check a payload against an " + webhooks.HeaderSignature + " value",
	Long: `Verify recomputes the signature of the exact payload bytes with the
shared secret and compares it in constant time. Exits non-zero on mismatch.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := readPayload(args)
		if err != nil {
			return err
		}
		if !webhooks.Verify(body, signSecret, strings.TrimSpace(verifySignature)) {
			return errors.New("signature mismatch")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "signature OK")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{signCmd, verifyCmd} {
		c.Flags().StringVar(&signSecret, "secret", "", "Webhook shared secret")
		_ = c.MarkFlagRequired("secret")
	}
	verifyCmd.Flags().StringVar(&verifySignature, "signature", "", "Signature header value to check")
	_ = verifyCmd.MarkFlagRequired("signature")
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenOrg  string
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API bearer token with the server's token secret",
	Long: `Token signs a bearer token locally. The secret is read from token_secret
in the hookctl config or HOOKCTL_TOKEN_SECRET, and must match the server's
auth.token_secret.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orgID, err := uuid.Parse(tokenOrg)
		if err != nil {
			return fmt.Errorf("invalid --org: %w", err)
		}
		issuer, err := auth.NewTokenIssuer(viper.GetString("token_secret"), viper.GetString("issuer"), tokenTTL)
		if err != nil {
			return err
		}
		tok, err := issuer.Issue(orgID, tokenRole)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	viper.SetDefault("issuer", "leadhooks")
	tokenCmd.Flags().StringVar(&tokenOrg, "org", "", "Organization ID the token is scoped to")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleAdmin, "Token role: admin or service")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("org")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the hookctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hookctl %s\n", version)
	},
}
