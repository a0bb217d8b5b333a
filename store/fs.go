package store

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/iterseq"
	"github.com/spfs-io/spfs/rterrors"
	"github.com/spfs-io/spfs/rtmetrics"
)

// shardWidth is how many leading base-32 characters of a digest's textual form
// are used as the first directory shard, keeping any one directory from
// holding more entries than a typical filesystem handles comfortably.
const shardWidth = 2

// FSBackend stores objects and payloads under a local directory, sharded
// by the first shardWidth characters of each digest's text encoding:
// <root>/objects/<shard>/<rest>
// <root>/payloads/<shard>/<rest>
type FSBackend struct {
	root string
}

// NewFSBackend returns a Backend rooted at root, creating the objects and
// payloads subdirectories if missing.
func NewFSBackend(root string) (*FSBackend, error) {
	b := &FSBackend{root: root}
	for _, dir := range []string{b.objectsDir(), b.payloadsDir()} {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *FSBackend) Name() string { return "fs" }

func (b *FSBackend) objectsDir() string  { return filepath.Join(b.root, "objects") }
func (b *FSBackend) payloadsDir() string { return filepath.Join(b.root, "payloads") }

func shardedPath(dir string, d digest.Digest) string {
	s := d.String()
	if len(s) <= shardWidth {
		return filepath.Join(dir, s)
	}
	return filepath.Join(dir, s[:shardWidth], s[shardWidth:])
}

func (b *FSBackend) objectPath(d digest.Digest) string  { return shardedPath(b.objectsDir(), d) }
func (b *FSBackend) payloadPath(d digest.Digest) string { return shardedPath(b.payloadsDir(), d) }

func (b *FSBackend) HasObject(ctx context.Context, d digest.Digest) (bool, error) {
	_, err := os.Stat(b.objectPath(d))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (b *FSBackend) ReadObject(ctx context.Context, d digest.Digest) (graph.Object, error) {
	f, err := os.Open(b.objectPath(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rterrors.UnknownObject{Digest: d}
		}
		return nil, err
	}
	defer f.Close()
	return graph.Decode(f)
}

func (b *FSBackend) WriteObject(ctx context.Context, obj graph.Object) error {
	d := graph.Digest(obj)
	path := b.objectPath(d)
	if ok, err := b.HasObject(ctx, d); err != nil {
		return err
	} else if ok {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	return writeAtomic(path, func(w io.Writer) error {
		return graph.Encode(w, obj)
	})
}

func (b *FSBackend) HasPayload(ctx context.Context, d digest.Digest) (bool, error) {
	_, err := os.Stat(b.payloadPath(d))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (b *FSBackend) ReadPayload(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(b.payloadPath(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rterrors.ObjectMissingPayload{Owner: d, Payload: d}
		}
		return nil, err
	}
	return f, nil
}

func (b *FSBackend) WritePayload(ctx context.Context, r io.Reader) (digest.Digest, int64, error) {
	tmpPath := filepath.Join(b.payloadsDir(), ".tmp-"+uuid.NewString())
	if err := os.MkdirAll(filepath.Dir(tmpPath), 0o777); err != nil {
		return digest.Nil, 0, err
	}
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o666)
	if err != nil {
		return digest.Nil, 0, err
	}
	defer os.Remove(tmpPath)

	hasher := digest.NewHasher()
	n, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		tmp.Close()
		return digest.Nil, 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return digest.Nil, 0, err
	}
	if err := tmp.Close(); err != nil {
		return digest.Nil, 0, err
	}

	d := hasher.Digest()
	finalPath := b.payloadPath(d)
	if _, err := os.Stat(finalPath); err == nil {
		// already present under this digest; the temp copy is
		// redundant.
		return d, n, nil
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o777); err != nil {
		return digest.Nil, 0, err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return digest.Nil, 0, err
	}
	rtmetrics.PayloadsWritten.WithValues(b.Name()).Inc()
	return d, n, nil
}

func (b *FSBackend) IterObjects(ctx context.Context) iterseq.Iterator[digest.Digest] {
	return walkDigests(b.objectsDir())
}

func (b *FSBackend) IterPayloadDigests(ctx context.Context) iterseq.Iterator[digest.Digest] {
	return walkDigests(b.payloadsDir())
}

func walkDigests(root string) iterseq.Iterator[digest.Digest] {
	var digests []digest.Digest
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		text := strings.ReplaceAll(rel, string(filepath.Separator), "")
		parsed, err := digest.Parse(text)
		if err != nil {
			// not a well-formed digest path; skip rather than fail the
			// whole walk.
			return nil
		}
		digests = append(digests, parsed)
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return iterseq.Func[digest.Digest](func(context.Context) (digest.Digest, bool, error) {
			return digest.Nil, false, walkErr
		})
	}
	return iterseq.Slice(digests)
}

// writeAtomic writes via a temp file in the same directory as path, then
// renames into place, so a crash mid-write never publishes a partial
// file under its final name.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmpPath := path + ".tmp-" + uuid.NewString()
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o666)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
