package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
)

// mirror copies every object under a gs://bucket/prefix store into
// cacheDir and returns the local directory. Objects already present with
// the same size are not downloaded again.
func mirror(uri, cacheDir string) (string, error) {
	bucket, prefix, err := splitGSURI(uri)
	if err != nil {
		return "", err
	}

	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return "", pfx.Err(err)
		}
		cacheDir = filepath.Join(base, "popgen")
	}
	local := filepath.Join(cacheDir, bucket, filepath.FromSlash(prefix))

	ctx := context.Background()
	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", pfx.Err(err)
	}
	defer client.Close()

	if prefix != "" {
		prefix += "/"
	}

	it := client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	fetched := 0
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", pfx.Err(err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}

		dest := filepath.Join(local, filepath.FromSlash(strings.TrimPrefix(attrs.Name, prefix)))
		if fi, err := os.Stat(dest); err == nil && fi.Size() == attrs.Size {
			continue
		}

		if err := download(ctx, client.Bucket(bucket).Object(attrs.Name), dest); err != nil {
			return "", err
		}
		fetched++
	}

	if _, err := os.Stat(catalogPath(local)); err != nil {
		return "", fmt.Errorf("%s holds no %s: %w", uri, CatalogFile, ErrNotFound)
	}

	log.WithFields(log.Fields{
		"uri":     uri,
		"local":   local,
		"fetched": fetched,
	}).Info("mirrored remote store")

	return local, nil
}

func download(ctx context.Context, obj *storage.ObjectHandle, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return pfx.Err(err)
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		return pfx.Err(err)
	}
	defer r.Close()

	// Write beside the destination and rename, so an interrupted copy never
	// looks complete.
	tmp := dest + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return pfx.Err(err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return pfx.Err(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return pfx.Err(err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		return pfx.Err(err)
	}

	return nil
}

func splitGSURI(uri string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(uri, "gs://")
	if rest == uri || rest == "" {
		return "", "", fmt.Errorf("%q is not a gs://bucket/prefix URI", uri)
	}

	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	if bucket == "" {
		return "", "", fmt.Errorf("%q names no bucket", uri)
	}

	return bucket, prefix, nil
}
