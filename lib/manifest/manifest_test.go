// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/bureau-foundation/swarmhash/lib/bmt"
	"github.com/bureau-foundation/swarmhash/lib/chunkstore"
	"github.com/bureau-foundation/swarmhash/lib/clock"
	"github.com/bureau-foundation/swarmhash/lib/pipeline"
	"github.com/bureau-foundation/swarmhash/lib/postage"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

func contentHash(name string) swarm.Hash {
	return bmt.Keccak256([]byte("content of " + name))
}

func newRoot(t *testing.T) *Node {
	t.Helper()
	root, err := NewNode(NodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return root
}

// storingBuilder returns a Builder that writes every node to store.
func storingBuilder(t *testing.T, store chunkstore.Store) Builder {
	t.Helper()
	issuer, err := postage.NewBucketIssuer(swarm.Hash{0x6d, 0x61}, swarm.BucketDepth+2)
	if err != nil {
		t.Fatal(err)
	}
	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	stamper := postage.NewBatchStamper(issuer, postage.NewMemoryStampStore(), fake)
	return PipelineBuilder(pipeline.Options{Store: store, Stamper: stamper, Concurrency: 2})
}

func TestAddCompressesSharedPrefixes(t *testing.T) {
	root := newRoot(t)
	for _, path := range []string{"cat", "car", "dog"} {
		if err := root.Add(path, Entry{Hash: contentHash(path)}); err != nil {
			t.Fatalf("Add(%q): %v", path, err)
		}
	}

	forks := root.Forks()
	if len(forks) != 2 || forks['c'].Prefix != "ca" || forks['d'].Prefix != "dog" {
		t.Fatalf("root forks = %v, want 'c':\"ca\" and 'd':\"dog\"", forkPrefixes(forks))
	}
	middle := forks['c'].Node.Forks()
	if len(middle) != 2 || middle['t'].Prefix != "t" || middle['r'].Prefix != "r" {
		t.Fatalf("\"ca\" forks = %v, want 't':\"t\" and 'r':\"r\"", forkPrefixes(middle))
	}
	if !root.Type().Has(TypeEdge) || !forks['c'].Node.Type().Has(TypeEdge) {
		t.Error("nodes with forks are not marked as edges")
	}

	ctx := context.Background()
	for _, path := range []string{"cat", "car", "dog"} {
		got, err := root.ResolveHash(ctx, path)
		if err != nil {
			t.Fatalf("ResolveHash(%q): %v", path, err)
		}
		if got != contentHash(path) {
			t.Errorf("ResolveHash(%q) = %s, want %s", path, got, contentHash(path))
		}
	}
	for _, path := range []string{"ca", "do", "cats", "bird"} {
		if _, err := root.ResolveHash(ctx, path); !errors.Is(err, ErrPathNotFound) {
			t.Errorf("ResolveHash(%q) error = %v, want ErrPathNotFound", path, err)
		}
	}
}

func forkPrefixes(forks map[byte]Fork) map[string]string {
	prefixes := make(map[string]string, len(forks))
	for key, f := range forks {
		prefixes[string(key)] = f.Prefix
	}
	return prefixes
}

func TestAddPrefixOfExistingPath(t *testing.T) {
	root := newRoot(t)
	if err := root.Add("cats", Entry{Hash: contentHash("cats")}); err != nil {
		t.Fatal(err)
	}
	if err := root.Add("cat", Entry{Hash: contentHash("cat")}); err != nil {
		t.Fatal(err)
	}

	cat, err := root.Lookup("cat")
	if err != nil {
		t.Fatal(err)
	}
	if cat.Entry() != contentHash("cat") || !cat.Type().Has(TypeValue) {
		t.Errorf("\"cat\" node entry = %s type = %d", cat.Entry(), cat.Type())
	}
	if forks := cat.Forks(); len(forks) != 1 || forks['s'].Prefix != "s" {
		t.Errorf("\"cat\" forks = %v, want 's':\"s\"", forkPrefixes(forks))
	}
}

func TestAddSplitsLongPrefixes(t *testing.T) {
	root := newRoot(t)
	path := "a-very-long-path-segment-that-exceeds-thirty-bytes"
	if err := root.Add(path, Entry{Hash: contentHash(path)}); err != nil {
		t.Fatal(err)
	}

	first := root.Forks()['a']
	if first.Prefix != path[:PrefixMaxSize] {
		t.Fatalf("first prefix = %q, want %q", first.Prefix, path[:PrefixMaxSize])
	}
	second := first.Node.Forks()[path[PrefixMaxSize]]
	if second.Prefix != path[PrefixMaxSize:] {
		t.Fatalf("second prefix = %q, want %q", second.Prefix, path[PrefixMaxSize:])
	}
	got, err := root.ResolveHash(context.Background(), path)
	if err != nil || got != contentHash(path) {
		t.Errorf("ResolveHash = %s, %v", got, err)
	}
}

func TestPathSeparatorFlagFollowsPrefix(t *testing.T) {
	root := newRoot(t)
	if err := root.Add("dir/a.txt", Entry{Hash: contentHash("a")}); err != nil {
		t.Fatal(err)
	}
	if !root.Forks()['d'].Node.Type().Has(TypeWithPathSeparator) {
		t.Fatal("node under \"dir/a.txt\" lacks the path separator flag")
	}

	if err := root.Add("dir/b.txt", Entry{Hash: contentHash("b")}); err != nil {
		t.Fatal(err)
	}
	dir := root.Forks()['d']
	if dir.Prefix != "dir/" || !dir.Node.Type().Has(TypeWithPathSeparator) {
		t.Errorf("split fork %q type %d, want \"dir/\" with the separator flag", dir.Prefix, dir.Node.Type())
	}
	leaf := dir.Node.Forks()['a']
	if leaf.Prefix != "a.txt" || leaf.Node.Type().Has(TypeWithPathSeparator) {
		t.Errorf("leaf fork %q type %d, want \"a.txt\" without the separator flag", leaf.Prefix, leaf.Node.Type())
	}
}

var longAsset = "assets/" + strings.Repeat("x", 40) + ".png"

// buildSite adds files in a fixed order; paths longer than a prefix
// produce different trie shapes for different insertion orders.
func buildSite(t *testing.T, encrypted bool) *Manifest {
	t.Helper()
	m, err := NewManifest(encrypted)
	if err != nil {
		t.Fatal(err)
	}
	files := []struct {
		path     string
		metadata map[string]string
	}{
		{"index.html", map[string]string{"Content-Type": "text/html"}},
		{"a.txt", nil},
		{"dir/b.txt", map[string]string{"Content-Type": "text/plain", "Filename": "b.txt"}},
		{"dir/c.txt", nil},
		{"dir/nested/d", nil},
		{longAsset, map[string]string{"Content-Type": "image/png"}},
	}
	for _, file := range files {
		if err := m.Add(file.path, contentHash(file.path), file.metadata); err != nil {
			t.Fatalf("Add(%q): %v", file.path, err)
		}
	}
	if err := m.SetIndexDocument("index.html"); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestIndexDocumentFallback(t *testing.T) {
	ctx := context.Background()
	m := buildSite(t, false)

	fromMemory, err := m.Root().ResolveHash(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if fromMemory != contentHash("index.html") {
		t.Errorf("in-memory empty path = %s, want the index document", fromMemory)
	}
	metadata, err := m.Root().Metadata(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if metadata["Content-Type"] != "text/html" {
		t.Errorf("empty path metadata = %v, want the index document's", metadata)
	}

	store := chunkstore.NewMemoryStore()
	hash, err := m.Save(ctx, storingBuilder(t, store))
	if err != nil {
		t.Fatal(err)
	}
	referenced := NewReferencedNode(store, hash)
	fromStore, err := referenced.ResolveHash(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	direct, err := referenced.ResolveHash(ctx, "index.html")
	if err != nil {
		t.Fatal(err)
	}
	if fromStore != direct {
		t.Errorf("empty path resolved to %s, \"index.html\" to %s", fromStore, direct)
	}
}

func TestEmptyPathWithoutIndexDocument(t *testing.T) {
	root := newRoot(t)
	if err := root.Add("a.txt", Entry{Hash: contentHash("a.txt")}); err != nil {
		t.Fatal(err)
	}
	_, err := root.ResolveHash(context.Background(), "")
	if !errors.Is(err, ErrIndexDocumentNotFound) || !errors.Is(err, ErrPathNotFound) {
		t.Errorf("empty path error = %v, want ErrIndexDocumentNotFound", err)
	}
}

type nodeView struct {
	Type     NodeType
	Entry    swarm.Hash
	Metadata map[string]string
	Hash     swarm.Hash
}

func collectNodes(prefix string, node *Node, into map[string]*Node) {
	for _, f := range node.Forks() {
		into[prefix+f.Prefix] = f.Node
		collectNodes(prefix+f.Prefix, f.Node, into)
	}
}

func collectReferenced(t *testing.T, prefix string, node *ReferencedNode, into map[string]nodeView) {
	t.Helper()
	ctx := context.Background()
	forks, err := node.Forks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range forks {
		entry, err := f.Node.Entry(ctx)
		if err != nil {
			t.Fatal(err)
		}
		into[prefix+f.Prefix] = nodeView{
			Type:     f.Node.Type(),
			Entry:    entry,
			Metadata: f.Node.NodeMetadata(),
			Hash:     f.Node.Hash(),
		}
		collectReferenced(t, prefix+f.Prefix, f.Node, into)
	}
}

func TestSaveAndDecodeRoundtrip(t *testing.T) {
	for _, encrypted := range []bool{false, true} {
		t.Run(fmt.Sprintf("encrypted=%v", encrypted), func(t *testing.T) {
			ctx := context.Background()
			m := buildSite(t, encrypted)
			rootKey := m.Root().ObfuscationKey()
			if encrypted == rootKey.IsZero() {
				t.Fatalf("encrypted=%v but the obfuscation key is %s", encrypted, rootKey)
			}

			nodes := make(map[string]*Node)
			collectNodes("", m.Root(), nodes)

			store := chunkstore.NewMemoryStore()
			hash, err := m.Save(ctx, storingBuilder(t, store))
			if err != nil {
				t.Fatal(err)
			}

			want := make(map[string]nodeView, len(nodes))
			for path, node := range nodes {
				nodeHash, err := node.Hash()
				if err != nil {
					t.Fatalf("node %q: %v", path, err)
				}
				want[path] = nodeView{
					Type:     node.Type(),
					Entry:    node.Entry(),
					Metadata: node.NodeMetadata(),
					Hash:     nodeHash,
				}
			}

			referenced := NewReferencedNode(store, hash)
			got := make(map[string]nodeView)
			collectReferenced(t, "", referenced, got)

			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("decoded trie differs (-memory +store):\n%s", diff)
			}

			key, err := referenced.ObfuscationKey(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if key != m.Root().ObfuscationKey() {
				t.Error("decoded obfuscation key differs from the root's")
			}
		})
	}
}

func TestSaveIsDeterministic(t *testing.T) {
	ctx := context.Background()
	var hashes []swarm.Hash
	for range 2 {
		m := buildSite(t, false)
		hash, err := m.Save(ctx, storingBuilder(t, chunkstore.NewMemoryStore()))
		if err != nil {
			t.Fatal(err)
		}
		hashes = append(hashes, hash)
	}
	if hashes[0] != hashes[1] {
		t.Errorf("identical manifests hashed to %s and %s", hashes[0], hashes[1])
	}
}

func TestWalkVisitsEntriesInPathOrder(t *testing.T) {
	ctx := context.Background()
	m := buildSite(t, false)
	store := chunkstore.NewMemoryStore()
	hash, err := m.Save(ctx, storingBuilder(t, store))
	if err != nil {
		t.Fatal(err)
	}

	var paths []string
	err = NewReferencedNode(store, hash).Walk(ctx, func(path string, entry swarm.Hash, _ map[string]string) error {
		if entry != contentHash(path) {
			t.Errorf("entry for %q = %s, want %s", path, entry, contentHash(path))
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"a.txt",
		longAsset,
		"dir/b.txt",
		"dir/c.txt",
		"dir/nested/d",
		"index.html",
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("walk order (-want +got):\n%s", diff)
	}
}

func TestLargeNodeSpansChunks(t *testing.T) {
	ctx := context.Background()
	root := newRoot(t)
	const count = 150
	for i := range count {
		path := string([]byte{byte(0x40 + i)}) + "-entry"
		if err := root.Add(path, Entry{Hash: contentHash(path), Metadata: map[string]string{"index": fmt.Sprint(i)}}); err != nil {
			t.Fatal(err)
		}
	}
	store := chunkstore.NewMemoryStore()
	if err := root.ComputeHash(ctx, storingBuilder(t, store)); err != nil {
		t.Fatal(err)
	}
	hash, err := root.Hash()
	if err != nil {
		t.Fatal(err)
	}
	rootChunk, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if !rootChunk.IsIntermediate() {
		t.Fatalf("root node of %d forks fit in one chunk (span %d)", count, rootChunk.Span)
	}

	referenced := NewReferencedNode(store, hash)
	for _, i := range []int{0, 77, count - 1} {
		path := string([]byte{byte(0x40 + i)}) + "-entry"
		metadata, err := referenced.Metadata(ctx, path)
		if err != nil {
			t.Fatalf("Metadata(%q): %v", path, err)
		}
		if metadata["index"] != fmt.Sprint(i) {
			t.Errorf("Metadata(%q) = %v", path, metadata)
		}
	}
}

// countingStore counts reads.
type countingStore struct {
	chunkstore.Store
	gets atomic.Int64
}

func (s *countingStore) Get(ctx context.Context, hash swarm.Hash) (*swarm.Chunk, error) {
	s.gets.Add(1)
	return s.Store.Get(ctx, hash)
}

func TestReferencedNodeDecodesOnlyThePath(t *testing.T) {
	ctx := context.Background()
	root := newRoot(t)
	for _, path := range []string{"a.txt", "dir/b.txt", "dir/c.txt"} {
		if err := root.Add(path, Entry{Hash: contentHash(path)}); err != nil {
			t.Fatal(err)
		}
	}
	store := &countingStore{Store: chunkstore.NewMemoryStore()}
	if err := root.ComputeHash(ctx, storingBuilder(t, store)); err != nil {
		t.Fatal(err)
	}
	hash, err := root.Hash()
	if err != nil {
		t.Fatal(err)
	}
	store.gets.Store(0)

	referenced := NewReferencedNode(store, hash)
	if store.gets.Load() != 0 {
		t.Fatal("NewReferencedNode read from the store")
	}
	got, err := referenced.ResolveHash(ctx, "dir/b.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got != contentHash("dir/b.txt") {
		t.Errorf("ResolveHash = %s, want %s", got, contentHash("dir/b.txt"))
	}
	// Root, "dir/" and "b.txt"; "a.txt" and "c.txt" stay undecoded.
	if reads := store.gets.Load(); reads != 3 {
		t.Errorf("resolution read %d chunks, want 3", reads)
	}

	if _, err := referenced.ResolveHash(ctx, "dir/b.txt"); err != nil {
		t.Fatal(err)
	}
	if reads := store.gets.Load(); reads != 3 {
		t.Errorf("second resolution read again: %d chunks total", reads)
	}
}

func TestReferencedNodeConcurrentResolution(t *testing.T) {
	ctx := context.Background()
	m := buildSite(t, true)
	store := chunkstore.NewMemoryStore()
	hash, err := m.Save(ctx, storingBuilder(t, store))
	if err != nil {
		t.Fatal(err)
	}

	referenced := NewReferencedNode(store, hash)
	paths := []string{"a.txt", "dir/b.txt", "dir/c.txt", "dir/nested/d", "index.html"}
	var wg sync.WaitGroup
	errs := make(chan error, 8*len(paths))
	for range 8 {
		for _, path := range paths {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := referenced.ResolveHash(ctx, path)
				if err != nil {
					errs <- err
					return
				}
				if got != contentHash(path) {
					errs <- fmt.Errorf("%q resolved to %s", path, got)
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// fixedHasher returns a preset reference and counts calls.
type fixedHasher struct {
	reference swarm.ChunkReference
	calls     *int
}

func (h fixedHasher) HashBytes(context.Context, []byte) (swarm.ChunkReference, error) {
	*h.calls++
	return h.reference, nil
}

func TestComputeHashLifecycle(t *testing.T) {
	ctx := context.Background()
	root := newRoot(t)
	if err := root.Add("a", Entry{Hash: contentHash("a")}); err != nil {
		t.Fatal(err)
	}
	if _, err := root.Hash(); !errors.Is(err, ErrNotHashed) {
		t.Errorf("Hash before hashing error = %v, want ErrNotHashed", err)
	}

	calls := 0
	builder := func() (BytesHasher, error) {
		return fixedHasher{reference: swarm.ChunkReference{Hash: swarm.Hash{byte(calls + 1)}}, calls: &calls}, nil
	}
	if err := root.ComputeHash(ctx, builder); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("hashed %d nodes, want 2", calls)
	}
	first, err := root.Hash()
	if err != nil {
		t.Fatal(err)
	}

	if err := root.ComputeHash(ctx, builder); err != nil {
		t.Fatal(err)
	}
	second, _ := root.Hash()
	if calls != 2 || second != first {
		t.Errorf("second ComputeHash rehashed: calls = %d hash %s -> %s", calls, first, second)
	}

	if err := root.Add("b", Entry{Hash: contentHash("b")}); !errors.Is(err, ErrNodeImmutable) {
		t.Errorf("Add after hashing error = %v, want ErrNodeImmutable", err)
	}
	if _, err := root.ResolveHash(ctx, "a"); !errors.Is(err, ErrForksReleased) {
		t.Errorf("ResolveHash after hashing error = %v, want ErrForksReleased", err)
	}
}

func TestComputeHashRejectsEncryptedReference(t *testing.T) {
	root := newRoot(t)
	if err := root.Add("a", Entry{Hash: contentHash("a")}); err != nil {
		t.Fatal(err)
	}
	calls := 0
	builder := func() (BytesHasher, error) {
		return fixedHasher{reference: swarm.ChunkReference{Hash: swarm.Hash{1}, Key: &swarm.EncryptionKey{2}}, calls: &calls}, nil
	}
	if err := root.ComputeHash(context.Background(), builder); !errors.Is(err, ErrEncryptedReference) {
		t.Errorf("ComputeHash error = %v, want ErrEncryptedReference", err)
	}

	compacting := PipelineBuilder(pipeline.Options{ReadOnly: true, CompactLevel: 4})
	if _, err := compacting(); !errors.Is(err, ErrEncryptedReference) {
		t.Errorf("compacting builder error = %v, want ErrEncryptedReference", err)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	key := swarm.EncryptionKey{0x11, 0x22, 0x33}
	root, err := NewNode(NodeOptions{ObfuscationKey: &key})
	if err != nil {
		t.Fatal(err)
	}
	data, err := root.marshal(false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := unmarshalNode(data); err != nil {
		t.Fatalf("decoding an untouched node: %v", err)
	}

	data[ObfuscationKeySize] ^= 0xff
	if _, err := unmarshalNode(data); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("tampered version error = %v, want ErrUnsupportedVersion", err)
	}
	if _, err := unmarshalNode(data[:headerSize]); err == nil {
		t.Error("decoded a node truncated before its fork index")
	}
}

func TestNodesAreObfuscated(t *testing.T) {
	key := swarm.EncryptionKey{0x5a, 0xa5}
	root, err := NewNode(NodeOptions{ObfuscationKey: &key})
	if err != nil {
		t.Fatal(err)
	}
	data, err := root.marshal(false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data[:ObfuscationKeySize], key[:]) {
		t.Error("obfuscation key is not stored in clear")
	}
	if bytes.Equal(data[ObfuscationKeySize:ObfuscationKeySize+VersionHashSize], versionHash[:]) {
		t.Error("version marker is stored in clear under a non-zero key")
	}
}

func TestVersionHash(t *testing.T) {
	if got := hex.EncodeToString(versionHash[:]); got != "5768b3b6a7db56d21d1abff40d41cebfc83448fed8d7e9b06ec0d3b073f28f" {
		t.Errorf("versionHash = %s", got)
	}
}

func TestNodeEncodingKnownAnswer(t *testing.T) {
	ctx := context.Background()
	var key swarm.EncryptionKey
	var entry swarm.Hash
	for i := range key {
		key[i] = byte(0xa0 + i)
		entry[i] = byte(i)
	}
	root, err := NewNode(NodeOptions{ObfuscationKey: &key})
	if err != nil {
		t.Fatal(err)
	}
	// The JSON is 30 bytes, so with its length field the block is
	// already a multiple of 32 and carries no padding.
	if err := root.Add("notes.yaml", Entry{Hash: entry, Metadata: map[string]string{"Content-Type": "text/x-yaml"}}); err != nil {
		t.Fatal(err)
	}

	store := chunkstore.NewMemoryStore()
	if err := root.ComputeHash(ctx, storingBuilder(t, store)); err != nil {
		t.Fatal(err)
	}
	hash, err := root.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if got := hash.String(); got != "db6ee6a275f751fe8c6b0060ea92f5e84b377bbcecf98b0548a03a53a879d816" {
		t.Errorf("root hash = %s", got)
	}

	chunk, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	want := "a0a1a2a3a4a5a6a7a8a9aaabacadaeafb0b1b2b3b4b5b6b7b8b9babbbcbdbebf" + // obfuscation key
		"f7c91115037ef075b5b3155fa1ec60107885fa4d6c625f07d679690bcf4f31" + // version
		"9f" + // entry length
		"a0a1a2a3a4a5a6a7a8a9aaabacadaeafb0b1b2b3b4b5b6b7b8b9babbbcbdbebf" + // zero entry
		"a0a1a2a3a4a5a6a7a8a9aaabacedaeafb0b1b2b3b4b5b6b7b8b9babbbcbdbebf" + // fork index
		"b2abccccd0c0d589d1c8c7c7acadaeafb0b1b2b3b4b5b6b7b8b9babbbcbdbebf" + // flags, prefix
		"59d34db9abdf8ccf353d909bacfb252eb57a047aca4d9fba66b59bea242de8cb" + // child hash
		"a0bfd981e7cac8d3cdc7de86f8d4deca928b90c7d1cdc298c094c3dad1d19cc2" // metadata
	if got := hex.EncodeToString(chunk.Data); got != want {
		t.Errorf("root node bytes:\n got %s\nwant %s", got, want)
	}

	decoded, err := unmarshalNode(chunk.Data)
	if err != nil {
		t.Fatalf("unmarshalNode: %v", err)
	}
	notes := decoded.forks['n']
	if string(notes.prefix) != "notes.yaml" || notes.nodeType != TypeValue|TypeWithMetadata {
		t.Errorf("decoded fork = %q type %d", notes.prefix, notes.nodeType)
	}
	if notes.childHash.String() != "f972ef1a0f7a2a689d943a3000568b8105cbb6c97ef8290dde0c215198905674" {
		t.Errorf("child hash = %s", notes.childHash)
	}
}

func TestAddReplacesMetadata(t *testing.T) {
	ctx := context.Background()
	root := newRoot(t)
	if err := root.Add("a.txt", Entry{Hash: contentHash("old"), Metadata: map[string]string{"Content-Type": "text/html"}}); err != nil {
		t.Fatal(err)
	}
	if err := root.Add("a.txt", Entry{Hash: contentHash("new")}); err != nil {
		t.Fatal(err)
	}

	store := chunkstore.NewMemoryStore()
	if err := root.ComputeHash(ctx, storingBuilder(t, store)); err != nil {
		t.Fatal(err)
	}
	hash, err := root.Hash()
	if err != nil {
		t.Fatal(err)
	}
	referenced := NewReferencedNode(store, hash)
	entry, err := referenced.ResolveHash(ctx, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if entry != contentHash("new") {
		t.Errorf("entry = %s, want the replacement", entry)
	}
	metadata, err := referenced.Metadata(ctx, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(metadata) != 0 {
		t.Errorf("metadata = %v, want none after replacement", metadata)
	}
}

func TestMetadataBlockPadding(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		length   int
		padded   bool
	}{
		// {"a":"b"} is 9 bytes; with the length field, 11 pads to 32.
		{"short", map[string]string{"a": "b"}, 30, true},
		// {"k":"…"} with a 22-byte value is 30 bytes: already aligned.
		{"aligned", map[string]string{"k": strings.Repeat("v", 22)}, 30, false},
		// 31 bytes of JSON pad to the next multiple.
		{"spill", map[string]string{"k": strings.Repeat("v", 23)}, 62, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			block, err := encodeMetadata(test.metadata)
			if err != nil {
				t.Fatal(err)
			}
			if len(block)%ObfuscationKeySize != 0 {
				t.Errorf("block length %d is not a multiple of %d", len(block), ObfuscationKeySize)
			}
			if got := int(block[0])<<8 | int(block[1]); got != test.length {
				t.Errorf("length field = %d, want %d", got, test.length)
			}
			if last := block[len(block)-1]; test.padded != (last == '\n') {
				t.Errorf("last byte %q, padded = %v", last, test.padded)
			}
		})
	}
}
