package core

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"
)

// stagedBinary is a source file copied next to its destination and hashed
// in the same pass.
type stagedBinary struct {
	tmp    string
	SHA1   string
	SHA256 string
	MD5    string
	Size   int64
}

// stageBinary copies src into dir under a temporary name.
func stageBinary(src, dir string) (*stagedBinary, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("stage source: %w", err)
	}

	h1, h256, h5 := sha1.New(), sha256.New(), md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, h1, h256, h5), in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("copy %s: %w", src, err)
	}

	return &stagedBinary{
		tmp:    tmp.Name(),
		SHA1:   hex.EncodeToString(h1.Sum(nil)),
		SHA256: hex.EncodeToString(h256.Sum(nil)),
		MD5:    hex.EncodeToString(h5.Sum(nil)),
		Size:   n,
	}, nil
}

// commit moves the staged copy to dst.
func (s *stagedBinary) commit(dst string) error {
	if err := os.Chmod(s.tmp, 0o644); err != nil {
		return err
	}
	if err := os.Rename(s.tmp, dst); err != nil {
		return fmt.Errorf("place binary %s: %w", dst, err)
	}
	s.tmp = ""
	return nil
}

// discard removes the staged copy unless it was committed.
func (s *stagedBinary) discard() {
	if s.tmp != "" {
		os.Remove(s.tmp)
	}
}

// mimeType maps an extension to a media type without parameters.
func mimeType(ext string) string {
	t := mime.TypeByExtension(ext)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if t == "" {
		return "application/octet-stream"
	}
	return t
}
