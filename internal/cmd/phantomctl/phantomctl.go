// Package phantomctl implements the offline identity CLI.
//
// Every command runs locally against the identity engine; nothing is sent to
// the auth service.
package phantomctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phantom-chat/phantom/internal/services/auth/identity"
)

// identityOutput is the printable form of an identity.
type identityOutput struct {
	PhantomID string `json:"phantomId"`
	Origin    string `json:"origin"`
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey,omitempty"`
	Mnemonic  string `json:"mnemonic,omitempty"`
}

type options struct {
	asJSON     bool
	showSecret bool
}

// NewRootCommand builds the phantomctl command tree writing to out.
func NewRootCommand(out io.Writer, engine *identity.Engine) *cobra.Command {
	if engine == nil {
		engine = identity.NewEngine()
	}
	opts := &options{}
	root := &cobra.Command{
		Use:           "phantomctl",
		Short:         "Generate and restore Phantom identities offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of text")
	root.PersistentFlags().BoolVar(&opts.showSecret, "show-secret", false, "include the secret key in the output")

	root.AddCommand(generateCmd(engine, opts), restoreCmd(opts), validateCmd())
	return root
}

func generateCmd(engine *identity.Engine, opts *options) *cobra.Command {
	var random bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create a new identity and its recovery phrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if random {
				generated, err := engine.Generate()
				if err != nil {
					return err
				}
				return printIdentity(cmd.OutOrStdout(), opts, generated, "")
			}
			generated, phrase, err := engine.GenerateWithRecoveryPhrase()
			if err != nil {
				return err
			}
			return printIdentity(cmd.OutOrStdout(), opts, generated, phrase)
		},
	}
	cmd.Flags().BoolVar(&random, "random", false, "use a random Phantom ID without a recovery phrase")
	return cmd
}

func restoreCmd(opts *options) *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "restore [word...]",
		Short: "Restore an identity from its recovery phrase or secret key",
		RunE: func(cmd *cobra.Command, args []string) error {
			phrase := strings.Join(args, " ")
			switch {
			case secret != "" && phrase != "":
				return errors.New("pass either a recovery phrase or --secret, not both")
			case secret != "":
				restored, err := identity.RestoreFromSecret(secret)
				if err != nil {
					return err
				}
				return printIdentity(cmd.OutOrStdout(), opts, restored, "")
			case phrase != "":
				restored, err := identity.Restore(phrase)
				if err != nil {
					return err
				}
				return printIdentity(cmd.OutOrStdout(), opts, restored, "")
			default:
				return errors.New("a recovery phrase or --secret is required")
			}
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "64 hex character secret key")
	return cmd
}

func validateCmd() *cobra.Command {
	var secret bool
	cmd := &cobra.Command{
		Use:   "validate [word...|hex]",
		Short: "Check a recovery phrase or secret key without restoring it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret || (len(args) == 1 && isHex(args[0])) {
				if !identity.ValidateSecret(args[0]) || len(args) != 1 {
					return identity.ErrInvalidSecretFormat
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "valid secret")
				return err
			}
			if !identity.ValidatePhrase(strings.Join(args, " ")) {
				return identity.ErrInvalidRecoveryPhrase
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "valid recovery phrase")
			return err
		},
	}
	cmd.Flags().BoolVar(&secret, "secret", false, "treat the input as a hex secret key")
	return cmd
}

// isHex reports whether value is non-empty and made only of hex digits.
func isHex(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func printIdentity(out io.Writer, opts *options, id identity.Identity, phrase string) error {
	view := identityOutput{
		PhantomID: id.PhantomID,
		Origin:    string(id.Origin),
		PublicKey: id.PublicKeyHex(),
		Mnemonic:  phrase,
	}
	if opts.showSecret {
		view.SecretKey = id.SecretHex()
	}
	if opts.asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(view)
	}

	fmt.Fprintf(out, "Phantom ID: %s\n", view.PhantomID)
	fmt.Fprintf(out, "Origin:     %s\n", view.Origin)
	fmt.Fprintf(out, "Public key: %s\n", view.PublicKey)
	if view.SecretKey != "" {
		fmt.Fprintf(out, "Secret key: %s\n", view.SecretKey)
	}
	if view.Mnemonic != "" {
		fmt.Fprintf(out, "Recovery phrase: %s\n", view.Mnemonic)
	}
	return nil
}
