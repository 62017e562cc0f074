package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalStore implements ObjectStore on the local filesystem. It stands
// in for the real object store in standalone deployments; signed URLs
// are HMAC-stamped links that the API's object handler verifies.
type LocalStore struct {
	baseDir string
	baseURL string
	secret  []byte
}

// NewLocalStore creates a filesystem-backed store rooted at baseDir.
// baseURL is the externally visible server address used in signed URLs.
func NewLocalStore(baseDir, baseURL string, secret []byte) (*LocalStore, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret must not be empty")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating object directory: %w", err)
	}

	return &LocalStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
	}, nil
}

// Put writes the object under key, creating parent directories as
// needed for the processed/<variant>/ namespace.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating object: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return fmt.Errorf("writing object: %w", err)
	}
	return nil
}

// Head checks object presence. A missing object is not an error.
func (s *LocalStore) Head(ctx context.Context, key string) (bool, error) {
	path, err := s.resolve(key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

// SignedURL returns a time-limited link served by the object handler.
func (s *LocalStore) SignedURL(key string, ttl time.Duration) (string, error) {
	if _, err := s.resolve(key); err != nil {
		return "", err
	}

	expires := time.Now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(key, expires))
	return fmt.Sprintf("%s/api/objects/%s?%s", s.baseURL, key, q.Encode()), nil
}

// Verify checks the signature and expiry of a signed-URL request.
func (s *LocalStore) Verify(key string, expires int64, sig string) bool {
	if time.Now().Unix() > expires {
		return false
	}
	want := s.sign(key, expires)
	return hmac.Equal([]byte(want), []byte(sig))
}

// Open returns a reader for the object, for the serving handler.
func (s *LocalStore) Open(key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("opening object: %w", err)
	}
	return f, nil
}

func (s *LocalStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve maps a key to a filesystem path, rejecting traversal.
func (s *LocalStore) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid key: path traversal detected")
	}
	return path, nil
}
