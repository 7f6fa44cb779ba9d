// Handles the "srkstore blob exists" command

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var blobExistsKey string

var blobExistsCmd = &cobra.Command{
	Use:   "exists",
	Short: "Check whether a blob exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		exists, err := client.Bucket(blobCmdConfig.bucket).Exists(context.Background(), blobExistsKey)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), exists)
		return nil
	},
}

func init() {
	blobCmd.AddCommand(blobExistsCmd)

	blobExistsCmd.Flags().StringVarP(&blobExistsKey, "key", "k", "", "key of the blob")
	blobExistsCmd.MarkFlagRequired("key")
}
