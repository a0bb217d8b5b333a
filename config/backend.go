package config

import (
	"path/filepath"

	"github.com/spfs-io/spfs/store"
	"github.com/spfs-io/spfs/track"
)

// NewLocalBackend constructs the "fs" object-store backend rooted at
// cfg.Storage.Root: objects and payloads live under
// "<root>/objects"/"<root>/payloads" per the on-disk layout.
func NewLocalBackend(cfg *Configuration) (store.Backend, error) {
	return store.NewFSBackend(cfg.Storage.Root)
}

// NewLocalTagStore constructs the tag store for cfg.Storage.Root: tag
// streams live under "<root>/tags", alongside NewLocalBackend's
// "objects"/"payloads" trees, per the on-disk layout.
func NewLocalTagStore(cfg *Configuration) track.Store {
	return track.NewFSStore(filepath.Join(cfg.Storage.Root, "tags"))
}
