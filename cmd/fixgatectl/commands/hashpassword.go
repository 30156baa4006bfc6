package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/fixgate/pkg/auth"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password for the server configuration",
	Long: `Prompt for a password and print its bcrypt hash, suitable for
auth.credentials[].password_hash and api.admin_password_hash.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := promptNewCredential(8)
		if err != nil {
			return err
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}
