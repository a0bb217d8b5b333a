package repo

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spfs-io/spfs/solve"
	"github.com/spfs-io/spfs/store"
	"github.com/spfs-io/spfs/track"
)

// parseDurationAgo parses a Go duration string (e.g. "24h") as "that long
// ago from now", for the when= address query parameter.
func parseDurationAgo(s string) (time.Time, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid when= duration %q: %w", s, err)
	}
	return time.Now().Add(-d), nil
}

// Open resolves a repository address into a solve.Repository, dispatching
// on URL scheme:
//
//	file://path            an FS-backed repository rooted at path
//	tar://path             a read-only Tar-backed repository (no tags)
//	http2://host[?lazy=true&when=<duration-ago>]
//	                       an RPC-backed repository reached over HTTPTransport;
//	                       when= wraps the result in Pinned
//	http(s)://host         same as http2, including the lazy/when options
//
// The concrete value is always either *Handle or *Pinned; callers that
// need repository-specific operations beyond solve.Repository (ResolveRef,
// FindAliases, GetShortenedDigest, Upgrade) type-assert to *Handle.
func Open(ctx context.Context, name, address string) (solve.Repository, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid repository address %q: %w", address, err)
	}

	switch u.Scheme {
	case "file":
		return openFile(name, u)
	case "tar":
		return openTar(name, u)
	case "http2", "http", "https":
		return openHTTP(name, u)
	default:
		return nil, fmt.Errorf("unsupported repository address scheme: %q", u.Scheme)
	}
}

// OpenHandle is Open, but always returns the underlying *Handle rather
// than a possibly-Pinned solve.Repository -- for callers like the
// integrity checker and syncer CLI that need direct Store/Tags access
// and have no use for the pinned read filter.
func OpenHandle(ctx context.Context, name, address string) (*Handle, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid repository address %q: %w", address, err)
	}
	switch u.Scheme {
	case "file":
		return openFile(name, u)
	case "tar":
		return openTar(name, u)
	case "http2", "http", "https":
		query := u.Query()
		if lazy := query.Get("lazy"); lazy != "" {
			if _, err := strconv.ParseBool(lazy); err != nil {
				return nil, fmt.Errorf("invalid lazy= value %q: %w", lazy, err)
			}
		}
		base := (&url.URL{Scheme: httpSchemeFor(u.Scheme), Host: u.Host, Path: u.Path}).String()
		transport := NewHTTPTransport(base, nil)
		backend, err := store.NewCachingBackend(store.NewRPCBackend(transport), remoteObjectCacheSize)
		if err != nil {
			return nil, err
		}
		tags := track.NewHTTPStore(transport)
		return New(name, backend, tags), nil
	default:
		return nil, fmt.Errorf("unsupported repository address scheme: %q", u.Scheme)
	}
}

func openFile(name string, u *url.URL) (*Handle, error) {
	root := u.Path
	if root == "" {
		root = u.Opaque
	}
	backend, err := store.NewFSBackend(root)
	if err != nil {
		return nil, err
	}
	tags := track.NewFSStore(filepath.Join(root, "tags"))
	return New(name, backend, tags), nil
}

func openTar(name string, u *url.URL) (*Handle, error) {
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	fp, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	backend, err := store.NewTarBackend(fp)
	if err != nil {
		return nil, err
	}
	// Tar archives are read-only snapshots: no tag store.
	return New(name, backend, nil), nil
}

// remoteObjectCacheSize bounds how many decoded objects an http2://
// repository keeps around in memory, avoiding a repeat round trip for
// objects the solver or syncer revisits (e.g. a shared base layer
// referenced by many builds).
const remoteObjectCacheSize = 4096

func openHTTP(name string, u *url.URL) (solve.Repository, error) {
	query := u.Query()
	base := (&url.URL{Scheme: httpSchemeFor(u.Scheme), Host: u.Host, Path: u.Path}).String()

	transport := NewHTTPTransport(base, nil)
	backend, err := store.NewCachingBackend(store.NewRPCBackend(transport), remoteObjectCacheSize)
	if err != nil {
		return nil, err
	}
	tags := track.NewHTTPStore(transport)
	handle := New(name, backend, tags)

	if lazy := query.Get("lazy"); lazy != "" {
		if _, err := strconv.ParseBool(lazy); err != nil {
			return nil, fmt.Errorf("invalid lazy= value %q: %w", lazy, err)
		}
	}

	when := query.Get("when")
	if when == "" {
		return handle, nil
	}
	at, err := parseDurationAgo(when)
	if err != nil {
		return nil, err
	}
	return NewPinned(handle, at), nil
}

// httpSchemeFor maps spfs's http2:// repository scheme onto the wire
// scheme HTTPTransport actually dials ("http2" carries no TLS semantics
// of its own, it just marks "speak spfs's rpc protocol over HTTP").
func httpSchemeFor(scheme string) string {
	if scheme == "http2" {
		return "https"
	}
	return scheme
}
