package srkmgr

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/serverlessresearch/srkstore/pkg/backend/awss3"
	"github.com/serverlessresearch/srkstore/pkg/backend/azureblob"
	"github.com/serverlessresearch/srkstore/pkg/backend/gcs"
	"github.com/serverlessresearch/srkstore/pkg/backend/local"
	"github.com/serverlessresearch/srkstore/pkg/srk"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

type SrkManager struct {
	Provider *srk.Provider
	Logger   srk.Logger
	Cfg      *viper.Viper

	// one service per configured provider name
	services map[string]srk.BlobService
}

func NewManager(userCfg map[string]interface{}) (*SrkManager, error) {
	var err error
	mgr := &SrkManager{}

	if cfgPathRaw, ok := userCfg["config-file"]; ok {
		if cfgPath, ok := cfgPathRaw.(string); ok {
			err = mgr.initConfig(&cfgPath)
		} else {
			return nil, errors.New("option 'config-file' must be of type string")
		}
	} else {
		err = mgr.initConfig(nil)
	}
	if err != nil {
		return nil, err
	}

	if loggerRaw, ok := userCfg["logger"]; ok {
		if logger, ok := loggerRaw.(srk.Logger); ok {
			mgr.Logger = logger
		} else {
			return nil, errors.New("option 'logger' must satisfy srk.Logger")
		}
	} else {
		if mgr.Logger, err = mgr.newLogger(); err != nil {
			return nil, err
		}
	}

	// Clients only need the configuration; they never touch a backend.
	withStorage := true
	if raw, ok := userCfg["init-storage"]; ok {
		if withStorage, ok = raw.(bool); !ok {
			return nil, errors.New("option 'init-storage' must be of type bool")
		}
	}

	mgr.Provider = &srk.Provider{Buckets: map[string]srk.BucketBinding{}}
	if withStorage {
		if err = mgr.initStorage(); err != nil {
			mgr.Destroy()
			return nil, err
		}
	}

	return mgr, nil
}

// Destroy releases any connections held by the storage services.
func (self *SrkManager) Destroy() {
	for name, service := range self.services {
		if closer, ok := service.(srk.Closer); ok {
			if err := closer.Close(); err != nil {
				self.Logger.WithField("provider", name).Warnf("failed to close storage service: %v", err)
			}
		}
	}
	self.services = nil
}

// Gateways returns the services that serve presigned URLs themselves, in
// provider name order.
func (self *SrkManager) Gateways() []srk.Gateway {
	names := make([]string, 0, len(self.services))
	for name := range self.services {
		names = append(names, name)
	}
	sort.Strings(names)

	var gateways []srk.Gateway
	for _, name := range names {
		if gw, ok := self.services[name].(srk.Gateway); ok {
			gateways = append(gateways, gw)
		}
	}
	return gateways
}

func (self *SrkManager) initConfig(cfgPath *string) error {
	// Setup defaults and globals here. These can be overwritten in the config,
	// but aren't included by default.

	// This is a private viper context just for srk (so as not to conflict with
	// the importer's usage).
	self.Cfg = viper.New()

	self.Cfg.SetDefault("server.address", ":9000")
	self.Cfg.SetDefault("server.tls", false)
	self.Cfg.SetDefault("server.cert-file", "~/.srkstore/server.crt")
	self.Cfg.SetDefault("server.key-file", "~/.srkstore/server.key")
	self.Cfg.SetDefault("server.max-msg-size", 64<<20)
	self.Cfg.SetDefault("gateway.address", ":9100")
	self.Cfg.SetDefault("client.address", "localhost:9000")
	self.Cfg.SetDefault("client.tls", false)
	self.Cfg.SetDefault("client.timeout", "30s")
	self.Cfg.SetDefault("log.level", "info")
	self.Cfg.SetDefault("log.format", "text")

	// Order of precedence: ENV, srkstore.yaml, "us-west-2"
	self.Cfg.SetDefault("service.storage.s3.region", "us-west-2")
	self.Cfg.BindEnv("service.storage.s3.region", "AWS_DEFAULT_REGION")

	// SRKSTORE_SERVER_ADDRESS overrides server.address, and so on.
	self.Cfg.SetEnvPrefix("srkstore")
	self.Cfg.SetEnvKeyReplacer(envKeyReplacer)
	self.Cfg.AutomaticEnv()

	if cfgPath != nil {
		// Use config file from the flag.
		self.Cfg.SetConfigFile(*cfgPath)
	} else {
		// default search path for config is ./configs/srkstore.* (* can be json, yaml, etc)
		self.Cfg.AddConfigPath("./configs")
		self.Cfg.SetConfigName("srkstore")
	}

	// If a config file is found, read it in. Without an explicit path a
	// missing file is fine; everything can come from the environment.
	if err := self.Cfg.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound && cfgPath == nil {
			return nil
		}
		return errors.Wrap(err, "Failed to load config")
	}
	return nil
}

func (self *SrkManager) newLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(self.Cfg.GetString("log.level"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid log.level")
	}
	logger.SetLevel(level)

	switch format := self.Cfg.GetString("log.format"); format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("invalid log.format %q, expected text or json", format)
	}
	return logger, nil
}

// initStorage builds one service per referenced provider and binds every
// configured logical bucket to it.
func (self *SrkManager) initStorage() error {
	self.services = make(map[string]srk.BlobService)
	self.Provider.Buckets = make(map[string]srk.BucketBinding)

	defaultProvider := self.Cfg.GetString("default-provider")
	for logical := range self.Cfg.GetStringMap("buckets") {
		key := "buckets." + logical
		providerName := self.Cfg.GetString(key + ".provider")
		if providerName == "" {
			providerName = defaultProvider
		}
		if providerName == "" {
			return errors.Errorf("Bucket %q has no provider and there is no default provider in configuration", logical)
		}

		service, err := self.storageService(providerName)
		if err != nil {
			return err
		}

		nativeName := self.Cfg.GetString(key + ".name")
		if nativeName == "" {
			nativeName = logical
		}
		self.Provider.Buckets[logical] = srk.BucketBinding{
			Provider:   providerName,
			Service:    service,
			NativeName: nativeName,
		}
		self.Logger.WithFields(logrus.Fields{
			"bucket":   logical,
			"provider": providerName,
			"native":   nativeName,
		}).Debug("bound bucket")
	}

	if len(self.Provider.Buckets) == 0 {
		self.Logger.Warn("No buckets in configuration, every request will fail with not found")
	}
	return nil
}

// serviceConfig returns the settings section of a storage service. Keys bound
// to environment variables are not part of the section Sub returns, so they
// are copied over explicitly.
func (self *SrkManager) serviceConfig(serviceName string) *viper.Viper {
	prefix := "service.storage." + serviceName
	sub := self.Cfg.Sub(prefix)
	if sub == nil {
		sub = viper.New()
	}
	if serviceName == "s3" {
		sub.Set("region", self.Cfg.GetString(prefix+".region"))
	}
	return sub
}

func (self *SrkManager) storageService(providerName string) (srk.BlobService, error) {
	if service, ok := self.services[providerName]; ok {
		return service, nil
	}

	serviceName := self.Cfg.GetString("providers." + providerName + ".storage")
	if serviceName == "" {
		return nil, errors.New("Provider \"" + providerName + "\" does not provide a storage service")
	}

	var (
		service srk.BlobService
		err     error
	)
	switch serviceName {
	case "s3":
		service, err = awss3.NewService(
			self.Logger.WithField("module", "storage.s3"),
			self.serviceConfig("s3"))
	case "azblob":
		service, err = azureblob.NewService(
			self.Logger.WithField("module", "storage.azblob"),
			self.serviceConfig("azblob"))
	case "gcs":
		service, err = gcs.NewService(
			self.Logger.WithField("module", "storage.gcs"),
			self.serviceConfig("gcs"))
	case "localObjStore":
		service, err = local.NewService(
			self.Logger.WithField("module", "storage.local"),
			self.serviceConfig("localObjStore"))
	default:
		return nil, errors.New("Unrecognized storage service: " + serviceName)
	}
	if err != nil {
		return nil, errors.Wrap(err, "Failed to initialize service "+serviceName)
	}

	self.services[providerName] = service
	return service, nil
}
