package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/t77yq/kioskmon/internal/notification"
)

var vapidCmd = &cobra.Command{
	Use:   "vapid-keys",
	Short: "Generate a VAPID key pair for Web Push",
	RunE: func(cmd *cobra.Command, _ []string) error {
		publicKey, privateKey, err := notification.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "vapid_public_key: %s\nvapid_private_key: %s\n", publicKey, privateKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(vapidCmd)
}
