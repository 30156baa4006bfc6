package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginUser string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the admin API",
	Long: `Authenticate and print a bearer token. Export it for later calls:

  export FIXGATE_TOKEN=$(fixgatectl login --user admin)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := promptPassword("Password")
		if err != nil {
			return err
		}

		c := client()
		if err := c.Login(loginUser, password); err != nil {
			return err
		}

		fmt.Println(c.Token())
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginUser, "user", "admin", "Admin username")
}
