package srk

import (
	"crypto/x509"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "image/png", DetectContentType("photos/cat.png", nil))
	assert.Equal(t, "text/plain; charset=utf-8", DetectContentType("notes", []byte("hello world")))
	assert.Equal(t, "application/octet-stream", DetectContentType("blob", []byte{0x00, 0x01, 0xfe}))
}

func TestCleanKey(t *testing.T) {
	parts, err := CleanKey("a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c.txt"}, parts)

	for _, key := range []string{"", "../escape", "a/../../b", "a//b", "/abs", "trailing/", `a\b`, "./x"} {
		_, err := CleanKey(key)
		assert.True(t, objstore.IsInvalidArgument(err), "key %q", key)
	}
}

func TestLoadCertificatesGeneratesOnce(t *testing.T) {
	dir, err := ioutil.TempDir("", "srk-tls")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	files := TLSFiles{
		CertFile: filepath.Join(dir, "config", "srk.crt"),
		KeyFile:  filepath.Join(dir, "config", "srk.key"),
		Hosts:    []string{"storage.internal", "10.0.0.1"},
	}

	cert, err := LoadCertificates(files)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, leaf.DNSNames, "storage.internal")
	require.Len(t, leaf.IPAddresses, 1)
	assert.Equal(t, "10.0.0.1", leaf.IPAddresses[0].String())
	assert.True(t, leaf.IsCA)

	// a second load must reuse the files on disk
	again, err := LoadCertificates(files)
	require.NoError(t, err)
	assert.Equal(t, cert.Certificate[0], again.Certificate[0])
}
