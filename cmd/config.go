// Common configuration/setup functions
package cmd

import (
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/serverlessresearch/srkstore/pkg/srkmgr"
	"github.com/serverlessresearch/srkstore/pkg/storage"
	"github.com/spf13/cobra"
)

// clientPreRun replaces the root pre-run for commands that only talk to a
// running server; no storage backend is initialized.
func clientPreRun(cmd *cobra.Command, args []string) error {
	mgrArgs := map[string]interface{}{"init-storage": false}
	if cfgFile != "" {
		mgrArgs["config-file"] = cfgFile
	}

	var err error
	srkManager, err = srkmgr.NewManager(mgrArgs)
	if err != nil {
		return errors.Wrap(err, "failed to initialize srkstore manager")
	}
	return nil
}

func getClient() (*storage.Client, error) {
	cfg := srkManager.Cfg

	caFile, err := homedir.Expand(cfg.GetString("client.ca-file"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to expand client.ca-file")
	}

	client, err := storage.Dial(storage.Config{
		Address:     cfg.GetString("client.address"),
		TLS:         cfg.GetBool("client.tls"),
		CAFile:      caFile,
		CallTimeout: cfg.GetDuration("client.timeout"),
		MaxMsgSize:  cfg.GetInt("server.max-msg-size"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to storage server")
	}
	return client, nil
}
