// Handles the "srkstore blob presign" command

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/serverlessresearch/srkstore/pkg/storage"
	"github.com/spf13/cobra"
)

var blobPresignCmdConfig struct {
	key    string
	mode   string
	expiry time.Duration
}

var blobPresignCmd = &cobra.Command{
	Use:   "presign",
	Short: "Create a presigned URL for a blob",
	Long: `Print a URL that lets anyone holding it read (GET) or write (PUT) a single
blob until it expires, without credentials for the storage server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := presignOptions(cmd)
		if err != nil {
			return err
		}

		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()
		bucket := client.Bucket(blobCmdConfig.bucket)

		var url string
		switch strings.ToLower(blobPresignCmdConfig.mode) {
		case "read":
			url, err = bucket.GetDownloadURL(context.Background(), blobPresignCmdConfig.key, opts)
		case "write":
			url, err = bucket.GetUploadURL(context.Background(), blobPresignCmdConfig.key, opts)
		default:
			return errors.Errorf("Unrecognized mode %q, expected read or write", blobPresignCmdConfig.mode)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

// presignOptions turns the flags into PresignOptions. A zero expiry means the
// default to the client library, so an explicit one is rejected here.
func presignOptions(cmd *cobra.Command) (*storage.PresignOptions, error) {
	expiry := blobPresignCmdConfig.expiry
	if cmd.Flags().Changed("expiry") && expiry <= 0 {
		return nil, objstore.Errorf(objstore.InvalidArgument, nil, "expiry must be positive, got %s", expiry)
	}
	return &storage.PresignOptions{Expiry: expiry}, nil
}

func init() {
	blobCmd.AddCommand(blobPresignCmd)

	blobPresignCmd.Flags().StringVarP(&blobPresignCmdConfig.key, "key", "k", "", "key of the blob")
	blobPresignCmd.Flags().StringVarP(&blobPresignCmdConfig.mode, "mode", "m", "read", "read or write")
	blobPresignCmd.Flags().DurationVarP(&blobPresignCmdConfig.expiry, "expiry", "e", storage.DefaultPresignExpiry, "how long the URL stays valid")
	blobPresignCmd.MarkFlagRequired("key")
}
