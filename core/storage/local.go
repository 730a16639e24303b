package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/profilegate/core/logger"
	"github.com/relabs-tech/profilegate/core/supabase"
)

// LocalRoutePrefix is the path below which the local filesystem serves its objects
const LocalRoutePrefix = "/storage/local"

// LocalFilesystem stores objects in a local folder, one sub folder per bucket. It
// serves public and signed URLs itself. Only public buckets are served without
// signature.
type LocalFilesystem struct {
	baseFolder    string
	publicURL     url.URL
	publicBuckets map[string]bool
	privateKey    *rsa.PrivateKey
	now           func() time.Time
}

var errNotPublic = errors.New("bucket is not public")

// NewLocalFilesystem returns a new LocalFilesystem and adds its routes to router.
// URLs are created below publicURL. Objects of publicBuckets can be fetched by anyone,
// all other objects only through signed URLs. Signed URLs are signed with privateKey.
// Without key a random one is generated, then signed URLs are only valid for this process.
func NewLocalFilesystem(router *mux.Router, baseFolder string, publicURL url.URL, publicBuckets []string, privateKey *rsa.PrivateKey) (*LocalFilesystem, error) {
	if baseFolder == "" {
		return nil, fmt.Errorf("base folder must not be empty")
	}
	if privateKey == nil {
		logger.Default().Warn("No private key provided to sign URLs, a random one will be generated")
		logger.Default().Warn("This can only work when running in a single instance configuration")

		var err error
		privateKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, err
		}
	}
	f := &LocalFilesystem{
		baseFolder:    baseFolder,
		publicURL:     publicURL,
		publicBuckets: make(map[string]bool, len(publicBuckets)),
		privateKey:    privateKey,
		now:           time.Now,
	}
	for _, bucket := range publicBuckets {
		f.publicBuckets[bucket] = true
	}
	f.configure(router)
	return f, nil
}

func (f *LocalFilesystem) configure(router *mux.Router) {
	logger.Default().Debugln("local storage routes enabled")
	logger.Default().Debugln("  handle route: " + LocalRoutePrefix + "/public/{bucket}/{path} GET")
	logger.Default().Debugln("  handle route: " + LocalRoutePrefix + "/sign/{bucket}/{path} GET")

	router.HandleFunc(LocalRoutePrefix+"/public/{bucket}/{path:.+}", f.handlePublic).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc(LocalRoutePrefix+"/sign/{bucket}/{path:.+}", f.handleSigned).Methods(http.MethodGet, http.MethodHead)
}

var errInvalidPath = errors.New("'..' and empty elements are not allowed in bucket and path")

// filePath returns the file of the object at p in bucket
func (f *LocalFilesystem) filePath(bucket, p string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == ".." {
		return "", errInvalidPath
	}
	for _, element := range strings.Split(p, "/") {
		if element == ".." {
			return "", errInvalidPath
		}
	}
	return filepath.Join(f.baseFolder, bucket, filepath.FromSlash(p)), nil
}

func (f *LocalFilesystem) serve(w http.ResponseWriter, r *http.Request, bucket, p string) {
	file, err := f.filePath(bucket, p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if info, err := os.Stat(file); err != nil || info.IsDir() {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	logger.FromContext(r.Context()).Infof("local storage: [%s] %s/%s", r.Method, bucket, p)
	http.ServeFile(w, r, file)
}

func (f *LocalFilesystem) handlePublic(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !f.publicBuckets[vars["bucket"]] {
		// same answer as for a missing object, private buckets are not disclosed
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	f.serve(w, r, vars["bucket"], vars["path"])
}

func (f *LocalFilesystem) handleSigned(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket, p := vars["bucket"], vars["path"]
	query := r.URL.Query()
	if !f.isValid(bucket, p, query.Get("expiry"), query.Get("signature")) {
		logger.FromContext(r.Context()).Errorf("invalid signature for %s/%s", bucket, p)
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return
	}
	f.serve(w, r, bucket, p)
}

func signedMessage(bucket, p, expiry string) [32]byte {
	return sha256.Sum256([]byte(bucket + "/" + p + "\n" + expiry))
}

// isValid tells whether or not the signature for the object is valid and not expired
func (f *LocalFilesystem) isValid(bucket, p, expiry, signature string) bool {
	t, err := time.Parse(time.RFC3339, expiry)
	if err != nil || t.Before(f.now()) {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	hashed := signedMessage(bucket, p, expiry)
	return rsa.VerifyPKCS1v15(&f.privateKey.PublicKey, crypto.SHA256, hashed[:], sig) == nil
}

func (f *LocalFilesystem) objectURL(kind, bucket, p string, rawQuery string) string {
	u := f.publicURL
	u.Path = strings.TrimSuffix(f.publicURL.Path, "/") + LocalRoutePrefix + "/" + kind + "/" + bucket + "/" + p
	u.RawPath = strings.TrimSuffix(f.publicURL.EscapedPath(), "/") + LocalRoutePrefix + "/" + kind + "/" + url.PathEscape(bucket) + "/" + supabase.EscapePath(p)
	u.RawQuery = rawQuery
	return u.String()
}

// Upload implements Driver. An existing object is overwritten.
func (f *LocalFilesystem) Upload(ctx context.Context, object *Object) (*UploadResult, error) {
	file, err := f.filePath(object.Bucket, object.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(file, object.Data, 0600); err != nil {
		return nil, err
	}
	return &UploadResult{Bucket: object.Bucket, Key: object.Path}, nil
}

// Download implements Driver
func (f *LocalFilesystem) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	file, err := f.filePath(bucket, path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(file)
}

// List implements Driver. Entries are sorted by name. A missing folder is empty.
func (f *LocalFilesystem) List(ctx context.Context, bucket, prefix string, options ListOptions) ([]FileInfo, error) {
	folder, err := f.filePath(bucket, prefix)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(folder)
	if errors.Is(err, fs.ErrNotExist) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	if options.Offset >= len(entries) {
		return []FileInfo{}, nil
	}
	entries = entries[options.Offset:]
	if options.Limit > 0 && options.Limit < len(entries) {
		entries = entries[:options.Limit]
	}
	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		fi := FileInfo{Name: entry.Name()}
		if !entry.IsDir() {
			info, err := entry.Info()
			if err != nil {
				return nil, err
			}
			fi.UpdatedAt = info.ModTime().UTC().Format(time.RFC3339)
			fi.Metadata = map[string]interface{}{
				"size":     info.Size(),
				"mimetype": mime.TypeByExtension(Extension(entry.Name())),
			}
		}
		files = append(files, fi)
	}
	return files, nil
}

// Delete implements Driver. Deleting a missing object is not an error.
func (f *LocalFilesystem) Delete(ctx context.Context, bucket, path string) error {
	file, err := f.filePath(bucket, path)
	if err != nil {
		return err
	}
	if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// PublicURL implements Driver. Only objects of public buckets have a public URL.
func (f *LocalFilesystem) PublicURL(bucket, path string) (string, error) {
	if _, err := f.filePath(bucket, path); err != nil {
		return "", err
	}
	if !f.publicBuckets[bucket] {
		return "", errNotPublic
	}
	return f.objectURL("public", bucket, path, ""), nil
}

// SignedURL implements Driver
func (f *LocalFilesystem) SignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error) {
	if _, err := f.filePath(bucket, path); err != nil {
		return "", err
	}
	expiry := f.now().Add(expiresIn).UTC().Format(time.RFC3339)
	hashed := signedMessage(bucket, path, expiry)
	signature, err := rsa.SignPKCS1v15(rand.Reader, f.privateKey, crypto.SHA256, hashed[:])
	if err != nil {
		return "", err
	}
	v := url.Values{}
	v.Set("expiry", expiry)
	v.Set("signature", base64.RawURLEncoding.EncodeToString(signature))
	return f.objectURL("sign", bucket, path, v.Encode()), nil
}
