// Package ipfscid bridges a repository's object graph onto an
// IPFS-compatible blockstore, so a subgraph can be handed to anything that
// speaks the IPFS blockstore interface (a gateway, a bitswap exchange,
// `ipfs dag import`) by CID rather than by spfs's own digest form.
//
// Grounded on the teacher's registry/storage/driver/ipfs package, but
// trimmed to the slice of that dependency family that does not require a
// live libp2p/DHT session: go-cid, go-block-format, go-ipfs-blockstore,
// go-datastore and multiformats/go-multihash. See DESIGN.md for why
// go-blockservice, go-merkledag, go-unixfs and go-cidutil are not wired
// here.
package ipfscid

import (
	"bytes"
	"context"
	"fmt"
	"io"

	blocks "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
	datastore "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	mh "github.com/multiformats/go-multihash"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/store"
)

// cidFor derives the CIDv1 that names encoded under IPFS's own addressing
// scheme. This is independent of d: the blockstore stores and verifies
// content by this CID, not by spfs's base-32 digest, so an IPFS client
// never needs to understand spfs's digest format to fetch the block.
func cidFor(encoded []byte) (cid.Cid, error) {
	sum, err := mh.Sum(encoded, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Mapping records, for each exported object or payload, the CID it was
// published under in the returned blockstore.
type Mapping map[digest.Digest]cid.Cid

// Export walks every object and payload reachable from roots and copies
// it into a fresh in-memory blockstore keyed by CID. The returned Mapping
// lets a caller translate one of its own digests into the CID a peer
// should ask for.
func Export(ctx context.Context, backend store.Backend, roots []digest.Digest) (blockstore.Blockstore, Mapping, error) {
	bs := blockstore.NewBlockstore(dssync.MutexWrap(datastore.NewMapDatastore()))
	mapping := make(Mapping)
	visited := make(map[digest.Digest]bool)

	var walk func(d digest.Digest) error
	walk = func(d digest.Digest) error {
		if visited[d] {
			return nil
		}
		visited[d] = true

		obj, err := backend.ReadObject(ctx, d)
		if err != nil {
			return fmt.Errorf("ipfscid: read object %s: %w", d, err)
		}

		var body bytes.Buffer
		if err := graph.Encode(&body, obj); err != nil {
			return fmt.Errorf("ipfscid: encode object %s: %w", d, err)
		}
		if err := publish(ctx, bs, mapping, d, body.Bytes()); err != nil {
			return err
		}

		if blob, ok := obj.(graph.Blob); ok {
			// A Blob's only child is its payload digest, which is not an
			// object; it is published here rather than walked.
			return exportPayload(ctx, backend, bs, mapping, blob.PayloadDigest)
		}

		for _, child := range obj.Children() {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root); err != nil {
			return nil, nil, err
		}
	}
	return bs, mapping, nil
}

func exportPayload(ctx context.Context, backend store.Backend, bs blockstore.Blockstore, mapping Mapping, d digest.Digest) error {
	if _, ok := mapping[d]; ok {
		return nil
	}
	r, err := backend.ReadPayload(ctx, d)
	if err != nil {
		return fmt.Errorf("ipfscid: read payload %s: %w", d, err)
	}
	defer r.Close()
	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("ipfscid: buffer payload %s: %w", d, err)
	}
	return publish(ctx, bs, mapping, d, content)
}

func publish(ctx context.Context, bs blockstore.Blockstore, mapping Mapping, d digest.Digest, content []byte) error {
	if _, ok := mapping[d]; ok {
		return nil
	}
	c, err := cidFor(content)
	if err != nil {
		return fmt.Errorf("ipfscid: derive cid for %s: %w", d, err)
	}
	block, err := blocks.NewBlockWithCid(content, c)
	if err != nil {
		return fmt.Errorf("ipfscid: build block for %s: %w", d, err)
	}
	if err := bs.Put(ctx, block); err != nil {
		return fmt.Errorf("ipfscid: put block for %s: %w", d, err)
	}
	mapping[d] = c
	return nil
}
