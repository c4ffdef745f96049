package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"chatstream/internal/infra/config"
)

const configKeyEnv = "CHATSTREAM_CONFIG_KEY"

// encryptCommand prints an "enc:" value for use as api_key or a header in
// the config file. Load decrypts it with the same passphrase.
func encryptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt VALUE",
		Short: "Encrypt a secret for the config file using $" + configKeyEnv,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := os.Getenv(configKeyEnv)
			if passphrase == "" {
				return errors.New(configKeyEnv + " is not set")
			}
			value := strings.TrimSpace(args[0])
			if value == "" {
				return errors.New("nothing to encrypt")
			}
			enc, err := config.EncryptValue(value, passphrase)
			if err != nil {
				return fmt.Errorf("encrypt: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "enc:"+enc)
			return nil
		},
	}
}
