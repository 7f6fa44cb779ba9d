// Root of command-line argument parsing.
// This file was based off the standard cobra template, see
// https://github.com/spf13/cobra
package cmd

import (
	"fmt"
	"os"

	"github.com/serverlessresearch/srkstore/pkg/srkmgr"
	"github.com/spf13/cobra"
)

var cfgFile string

var srkManager *srkmgr.SrkManager

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "srkstore",
	Short: "Cloud-agnostic object storage for the Serverless Research Kit",
	Long: `srkstore serves one storage API over AWS S3, Azure Blob Storage, Google
Cloud Storage or a local directory, and includes a client for it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		mgrArgs := map[string]interface{}{}
		if cfgFile != "" {
			mgrArgs["config-file"] = cfgFile
		}

		var err error
		srkManager, err = srkmgr.NewManager(mgrArgs)
		if err != nil {
			return fmt.Errorf("failed to initialize srkstore manager: %v", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		srkManager.Destroy()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if srkManager == nil || srkManager.Logger == nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		} else {
			srkManager.Logger.Error(err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is configs/srkstore.yaml)")
}
