// Local filesystem storage. Implements the srk.BlobService interface.
//
// Every bucket is a directory under the configured root and every key a file
// path relative to it. Presigned URLs are served by the HTTP gateway in
// gateway.go.
package local

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/serverlessresearch/srkstore/pkg/srk"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// writes are staged here and renamed into place
	tmpDir = ".tmp"

	DefaultBaseURL = "http://localhost:9100/local"
)

type Config struct {
	// Root holds one directory per bucket.
	Root string
	// BaseURL is where the gateway routes are mounted, without a trailing slash.
	BaseURL string
	// Secret signs presign tokens. A random one is generated when empty.
	Secret []byte
	// Now defaults to time.Now.
	Now func() time.Time
}

type localStorage struct {
	fs      afero.Fs
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
	log     srk.Logger
}

// NewService reads its settings from the "service.storage.localObjStore"
// section of the configuration and stores blobs on the OS filesystem.
func NewService(logger srk.Logger, config *viper.Viper) (*localStorage, error) {
	if config == nil {
		config = viper.New()
	}
	config.SetDefault("base-url", DefaultBaseURL)

	root := config.GetString("root")
	if root == "" {
		return nil, errors.New("configuration setting 'root' is required")
	}
	root, err := homedir.Expand(root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to expand root directory")
	}

	return New(logger, afero.NewOsFs(), Config{
		Root:    root,
		BaseURL: config.GetString("base-url"),
		Secret:  []byte(config.GetString("secret")),
	})
}

func New(logger srk.Logger, fs afero.Fs, cfg Config) (*localStorage, error) {
	if cfg.Root == "" {
		return nil, errors.New("local storage requires a root directory")
	}
	if err := fs.MkdirAll(filepath.Join(cfg.Root, tmpDir), 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create storage directory %s", cfg.Root)
	}

	secret := cfg.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, errors.Wrap(err, "failed to generate signing secret")
		}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &localStorage{
		fs:      fs,
		root:    cfg.Root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		now:     now,
		log:     logger,
	}, nil
}

func errorHandler(err error) error {
	if os.IsNotExist(err) {
		return objstore.Errorf(objstore.NotFound, err, "object does not exist")
	} else if os.IsPermission(err) {
		return objstore.Errorf(objstore.PermissionDenied, err, "permission denied by the local filesystem")
	}
	return objstore.Errorf(objstore.Internal, err, "local storage failure")
}

func (s *localStorage) bucketPath(bucket string) (string, error) {
	if bucket == "" || strings.HasPrefix(bucket, ".") || strings.ContainsAny(bucket, `/\`) || strings.ContainsRune(bucket, 0) {
		return "", objstore.Errorf(objstore.InvalidArgument, nil, "bucket name %q is not valid for local storage", bucket)
	}
	return filepath.Join(s.root, bucket), nil
}

func (s *localStorage) blobPath(bucket, key string) (string, error) {
	dir, err := s.bucketPath(bucket)
	if err != nil {
		return "", err
	}
	parts, err := srk.CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{dir}, parts...)...), nil
}

func (s *localStorage) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	path, err := s.blobPath(bucket, key)
	if err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, errorHandler(err)
	}
	if info.IsDir() {
		return nil, objstore.Errorf(objstore.NotFound, nil, "object does not exist")
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, errorHandler(err)
	}
	return data, nil
}

// Write stages the body in the temp directory and renames it over the
// destination, so readers see either the old blob or the new one.
func (s *localStorage) Write(ctx context.Context, bucket, key string, body []byte) error {
	path, err := s.blobPath(bucket, key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errorHandler(err)
	}

	tmp := filepath.Join(s.root, tmpDir, uuid.New().String())
	if err := afero.WriteFile(s.fs, tmp, body, 0644); err != nil {
		return errorHandler(err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		s.fs.Remove(tmp)
		return errorHandler(err)
	}
	return nil
}

func (s *localStorage) Delete(ctx context.Context, bucket, key string) error {
	path, err := s.blobPath(bucket, key)
	if err != nil {
		return err
	}
	info, err := s.fs.Stat(path)
	if os.IsNotExist(err) || (err == nil && info.IsDir()) {
		return nil
	} else if err != nil {
		return errorHandler(err)
	}
	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return errorHandler(err)
	}
	bucketDir, _ := s.bucketPath(bucket)
	s.pruneDirs(filepath.Dir(path), bucketDir)
	return nil
}

// pruneDirs removes directories left empty by a delete, stopping at the
// bucket directory.
func (s *localStorage) pruneDirs(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop) {
		entries, err := afero.ReadDir(s.fs, dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := s.fs.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// List walks the bucket directory and returns every file whose key starts
// with prefix, sorted. A bucket that was never written to is empty.
func (s *localStorage) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	dir, err := s.bucketPath(bucket)
	if err != nil {
		return nil, err
	}
	if _, err := s.fs.Stat(dir); os.IsNotExist(err) {
		return []string{}, nil
	}

	keys := []string{}
	err = afero.Walk(s.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			// skip subtrees that cannot contain a match
			if !strings.HasPrefix(rel+"/", prefix) && !strings.HasPrefix(prefix, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(rel, prefix) {
			keys = append(keys, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errorHandler(err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *localStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	path, err := s.blobPath(bucket, key)
	if err != nil {
		return false, err
	}
	info, err := s.fs.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, errorHandler(err)
	}
	return !info.IsDir(), nil
}
