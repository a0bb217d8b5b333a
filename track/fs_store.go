package track

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/iterseq"
	"github.com/spfs-io/spfs/rterrors"
	"github.com/spfs-io/spfs/rtlog"
	"github.com/spfs-io/spfs/rtmetrics"
)

const tagExt = ".tag"

// FSStore is the Store implementation backing a local filesystem
// repository. Each (org, name) stream lives at
// <root>/<org>/<name>.tag as a concatenation of
// [uint64 size][encoded Tag] records, oldest first on disk; reads reverse
// this to expose newest first.
type FSStore struct {
	root string
}

// NewFSStore returns a Store rooted at the given "tags" directory (e.g.
// "<repo>/tags").
func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

func (s *FSStore) streamPath(spec TagSpec) string {
	return filepath.Join(s.root, filepath.FromSlash(spec.Org), spec.Name+tagExt)
}

func (s *FSStore) lockPath(spec TagSpec) string {
	return s.streamPath(spec) + ".lock"
}

func (s *FSStore) LsTags(ctx context.Context, path string) iterseq.Iterator[string] {
	dir := filepath.Join(s.root, filepath.FromSlash(path))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return iterseq.Slice[string](nil)
		}
		return iterseq.Func[string](func(context.Context) (string, bool, error) {
			return "", false, err
		})
	}
	seen := make(map[string]bool, len(entries))
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			name := e.Name() + "/"
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			continue
		}
		if strings.HasSuffix(e.Name(), tagExt) {
			name := strings.TrimSuffix(e.Name(), tagExt)
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return iterseq.Slice(names)
}

// FindTags is O(total tag records): it walks every stream looking for a
// matching target.
func (s *FSStore) FindTags(ctx context.Context, d digest.Digest) iterseq.Iterator[TagSpec] {
	streams := s.IterTagStreams(ctx)
	var pending []TagSpec
	return iterseq.Func[TagSpec](func(ctx context.Context) (TagSpec, bool, error) {
		for {
			if len(pending) > 0 {
				next := pending[0]
				pending = pending[1:]
				return next, true, nil
			}
			entry, ok, err := streams.Next(ctx)
			if err != nil || !ok {
				return TagSpec{}, ok, err
			}
			tags, err := iterseq.Collect(ctx, entry.Stream)
			if err != nil {
				return TagSpec{}, false, err
			}
			for i, tag := range tags {
				if tag.Target == d {
					pending = append(pending, entry.Spec.WithVersion(uint64(i)))
				}
			}
		}
	})
}

func (s *FSStore) IterTagStreams(ctx context.Context) iterseq.Iterator[TagSpecAndStream] {
	var paths []string
	walkErr := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, tagExt) {
			paths = append(paths, p)
		}
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return iterseq.Func[TagSpecAndStream](func(context.Context) (TagSpecAndStream, bool, error) {
			return TagSpecAndStream{}, false, walkErr
		})
	}
	i := 0
	return iterseq.Func[TagSpecAndStream](func(ctx context.Context) (TagSpecAndStream, bool, error) {
		if i >= len(paths) {
			return TagSpecAndStream{}, false, nil
		}
		p := paths[i]
		i++
		spec, err := tagSpecFromPath(p, s.root)
		if err != nil {
			return TagSpecAndStream{}, false, err
		}
		tags, err := readTagFile(p)
		if err != nil {
			return TagSpecAndStream{}, false, err
		}
		reverse(tags)
		return TagSpecAndStream{Spec: spec, Stream: iterseq.Slice(tags)}, true, nil
	})
}

func (s *FSStore) ReadTag(ctx context.Context, spec TagSpec) (iterseq.Iterator[Tag], error) {
	tags, err := readTagFile(s.streamPath(spec))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rterrors.UnknownReference{Ref: spec.String()}
		}
		return nil, err
	}
	reverse(tags)
	return iterseq.Slice(tags), nil
}

func (s *FSStore) PushRawTag(ctx context.Context, tag Tag) error {
	spec := NewTagSpec(tag.Org, tag.Name)
	path := s.streamPath(spec)
	if err := os.MkdirAll(filepathDir(path), 0o777); err != nil {
		return err
	}

	start := time.Now()
	lock, err := acquireLock(ctx, s.lockPath(spec))
	rtmetrics.Since(rtmetrics.TagLockWaits, start)
	if err != nil {
		return err
	}
	defer lock.release(ctx)

	if err := s.pushRawTagWithoutLock(tag); err != nil {
		return err
	}
	rtmetrics.TagPushes.WithValues(tag.Org, tag.Name).Inc()
	return nil
}

func (s *FSStore) pushRawTagWithoutLock(tag Tag) error {
	spec := NewTagSpec(tag.Org, tag.Name)
	path := s.streamPath(spec)

	var buf bytes.Buffer
	if err := tag.Encode(&buf); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o777)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := encoding.WriteUint(f, uint64(buf.Len())); err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return os.Chmod(path, 0o777)
}

func (s *FSStore) RemoveTag(ctx context.Context, tag Tag) error {
	spec := NewTagSpec(tag.Org, tag.Name)
	path := s.streamPath(spec)

	lock, err := acquireLock(ctx, s.lockPath(spec))
	if err != nil {
		return err
	}
	defer lock.release(ctx)

	existing, err := readTagFile(path)
	if err != nil {
		return err
	}
	var surviving []Tag
	for _, t := range existing {
		if !tagsEqual(t, tag) {
			surviving = append(surviving, t)
		}
	}

	backupPath := path + ".backup"
	if err := os.Rename(path, backupPath); err != nil {
		return err
	}

	// existing/surviving are stored oldest-first on disk; re-push in
	// that same order since push always appends.
	var pushErr error
	for _, t := range surviving {
		if pushErr = s.pushRawTagWithoutLock(t); pushErr != nil {
			break
		}
	}
	if pushErr != nil {
		if renameErr := os.Rename(backupPath, path); renameErr != nil {
			return renameErr
		}
		return pushErr
	}
	if err := os.Remove(backupPath); err != nil {
		// cleanup failure is logged, not raised -- the rewritten
		// stream is already durable at this point.
		rtlog.GetLogger(ctx, "path", backupPath).WithError(err).Warn("failed to remove tag stream backup")
		return nil
	}
	return nil
}

func (s *FSStore) RemoveTagStream(ctx context.Context, spec TagSpec) error {
	path := s.streamPath(spec)
	lock, err := acquireLock(ctx, s.lockPath(spec))
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		lock.release(ctx)
		if os.IsNotExist(err) {
			return rterrors.UnknownReference{Ref: spec.String()}
		}
		return err
	}
	// the lock file must go too, or the directory can never become
	// empty for the unwind below.
	lock.release(ctx)

	dir := filepathDir(path)
	for strings.HasPrefix(dir, s.root) && dir != s.root {
		if err := os.Remove(dir); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if isNotEmpty(err) {
				return nil
			}
			return err
		}
		dir = filepathDir(dir)
	}
	return nil
}

func readTagFile(path string) ([]Tag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var tags []Tag
	for {
		size, err := encoding.ReadUint(r)
		if err != nil {
			if err == io.EOF {
				break
			}
			return tags, err
		}
		lr := io.LimitReader(r, int64(size))
		tag, err := Decode(lr)
		if err != nil {
			// a partially written trailing record is tolerated: stop
			// at the first short read rather than failing the whole
			// read.
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return tags, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func tagSpecFromPath(p, root string) (TagSpec, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return TagSpec{}, err
	}
	rel = strings.TrimSuffix(rel, tagExt)
	rel = filepath.ToSlash(rel)
	i := strings.LastIndexByte(rel, '/')
	if i <= 0 {
		return TagSpec{}, rterrors.InvalidReference{Ref: rel, Reason: "tag path must be org/name"}
	}
	return TagSpec{Org: rel[:i], Name: rel[i+1:]}, nil
}

func reverse(tags []Tag) {
	for i, j := 0, len(tags)-1; i < j; i, j = i+1, j-1 {
		tags[i], tags[j] = tags[j], tags[i]
	}
}

func tagsEqual(a, b Tag) bool {
	return a.Org == b.Org && a.Name == b.Name && a.Target == b.Target &&
		a.Parent == b.Parent && a.User == b.User && a.Time.Equal(b.Time)
}

func isNotEmpty(err error) bool {
	return strings.Contains(err.Error(), "directory not empty")
}

func filepathDir(p string) string {
	return filepath.Dir(p)
}
