package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/idxstore/internal/encrypt"
)

// NewDecryptCommand creates the decrypt command.
func NewDecryptCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrypt <ciphertext>",
		Short: "Decrypt a stored value with the keyring secret",
		Long: `Decrypt one value written to an encrypted field, using the secret
kept in the system keyring under the configured service and user.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecrypt(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runDecrypt(opts *RootOptions, ciphertext string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := opts.config()
	if err != nil {
		return err
	}
	secret, err := keyringSource(cfg).Secret()
	if err != nil {
		return formatter.Fail(ExitCommandError, "KEYRING", err.Error())
	}

	plain, err := encrypt.NewAESGCM().Decrypt(cmd.Context(), ciphertext, secret)
	if err != nil {
		return formatter.Fail(ExitFailure, "DECRYPT_FAILED", err.Error())
	}

	if formatter.JSON() {
		return formatter.Success(map[string]string{"plaintext": plain})
	}
	fmt.Fprintln(formatter.Writer, plain)
	return nil
}
