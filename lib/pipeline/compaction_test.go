// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/sync/semaphore"

	"github.com/bureau-foundation/swarmhash/lib/bmt"
	"github.com/bureau-foundation/swarmhash/lib/postage"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// scriptedIssuer answers bucket queries from a function so tests can
// fabricate any bucket state.
type scriptedIssuer struct {
	batchID swarm.Hash
	minimum uint32

	mu         sync.Mutex
	calls      int
	collisions func(bucket uint32, call int) uint32
}

func (i *scriptedIssuer) BatchID() swarm.Hash { return i.batchID }

func (i *scriptedIssuer) MinBucketCollisions() uint32 { return i.minimum }

func (i *scriptedIssuer) BucketCollisions(bucket uint32) uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls++
	return i.collisions(bucket, i.calls)
}

// scriptedStamper pairs a scriptedIssuer with a real stamp store. It
// never issues stamps; the key search only reads.
type scriptedStamper struct {
	issuer *scriptedIssuer
	stamps *postage.MemoryStampStore
}

func newScriptedStamper(collisions func(bucket uint32, call int) uint32) *scriptedStamper {
	return &scriptedStamper{
		issuer: &scriptedIssuer{batchID: swarm.Hash{0xba}, collisions: collisions},
		stamps: postage.NewMemoryStampStore(),
	}
}

func (s *scriptedStamper) Stamp(context.Context, swarm.Hash) (*postage.Stamp, error) {
	return nil, errors.New("scripted stamper does not stamp")
}

func (s *scriptedStamper) Issuer() postage.Issuer { return s.issuer }

func (s *scriptedStamper) StampStore() postage.StampStore { return s.stamps }

func testSpanData(t *testing.T, payload string) (swarm.Hash, []byte) {
	t.Helper()
	spanData := append(swarm.SpanToBytes(uint64(len(payload))), payload...)
	plain, err := bmt.NewHasher().HashSpanData(spanData)
	if err != nil {
		t.Fatal(err)
	}
	return plain, spanData
}

// attemptBuckets returns the buckets candidate keys 0..count-1 land in.
func attemptBuckets(t *testing.T, plain swarm.Hash, spanData []byte, count int) []uint32 {
	t.Helper()
	search := newKeySearch(plain, spanData, bmt.NewHasher())
	buckets := make([]uint32, count)
	for i := range buckets {
		attempt, err := search.attempt(uint16(i))
		if err != nil {
			t.Fatal(err)
		}
		buckets[i] = attempt.hash.Bucket()
	}
	return buckets
}

func TestDeriveKeyReplacesLastTwoBytes(t *testing.T) {
	plain := swarm.Hash{1, 2, 3}
	plain[30], plain[31] = 0xff, 0xff

	seed := plain
	seed[30], seed[31] = 0x01, 0x02
	want := swarm.EncryptionKey(bmt.Keccak256(seed[:]))
	if got := deriveKey(plain, 0x0102); got != want {
		t.Errorf("deriveKey = %s, want %s", got, want)
	}
	if deriveKey(plain, 0) == deriveKey(plain, 1) {
		t.Error("different attempts derived the same key")
	}
}

func TestKeySearchEncryptsPayloadOnly(t *testing.T) {
	plain, spanData := testSpanData(t, "only the payload is encrypted")
	search := newKeySearch(plain, spanData, bmt.NewHasher())
	attempt, err := search.attempt(0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(attempt.spanData[:swarm.SpanSize], spanData[:swarm.SpanSize]) {
		t.Error("span was modified by encryption")
	}
	decrypted := make([]byte, len(attempt.spanData)-swarm.SpanSize)
	attempt.key.Transform(decrypted, attempt.spanData[swarm.SpanSize:])
	if !bytes.Equal(decrypted, spanData[swarm.SpanSize:]) {
		t.Error("decrypting the attempt does not restore the payload")
	}
	rehashed, err := bmt.NewHasher().HashSpanData(attempt.spanData)
	if err != nil {
		t.Fatal(err)
	}
	if rehashed != attempt.hash {
		t.Error("attempt hash is not the BMT hash of its encrypted chunk")
	}
}

func TestKeySearchAttemptKnownAnswer(t *testing.T) {
	plain, spanData := testSpanData(t, "foo")
	if got := plain.String(); got != "2387e8e7d8a48c2a9339c97c1dc3461a9a7aa07e994c5cb8b38fd7c1b3e6ea48" {
		t.Fatalf("plain hash of \"foo\" = %s", got)
	}

	attempt, err := newKeySearch(plain, spanData, bmt.NewHasher()).attempt(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := attempt.key.String(); got != "a8f4dcadbef5f674cb24cfff98618540d06190074672f43ca97d0478983666ba" {
		t.Errorf("key = %s", got)
	}
	if got := attempt.spanData[swarm.SpanSize:]; !bytes.Equal(got, []byte{0x6d, 0xa8, 0x5a}) {
		t.Errorf("encrypted payload = %x, want 6da85a", got)
	}
	if got := attempt.hash.String(); got != "7609b5f08b4c4e41f0b4f1522999e8ecd7234f06dc4ff88706d90974c1b09fda" {
		t.Errorf("encrypted chunk hash = %s", got)
	}
}

func TestKeySearchSelectsFirstAttemptAtMinimum(t *testing.T) {
	plain, spanData := testSpanData(t, "compaction acceptance")
	buckets := attemptBuckets(t, plain, spanData, 3)
	if buckets[2] == buckets[0] || buckets[2] == buckets[1] {
		t.Fatalf("fixture attempts share a bucket: %v", buckets)
	}

	stamper := newScriptedStamper(func(bucket uint32, _ int) uint32 {
		if bucket == buckets[2] {
			return 0
		}
		return 7
	})
	search := newKeySearch(plain, spanData, bmt.NewHasher())

	result, err := search.run(stamper, 16)
	if err != nil {
		t.Fatal(err)
	}
	if result.attempt.index != 2 {
		t.Fatalf("selected attempt %d, want 2", result.attempt.index)
	}
	if search.computed != 3 {
		t.Errorf("computed %d attempts, want 3", search.computed)
	}

	again, err := search.run(stamper, 16)
	if err != nil {
		t.Fatal(err)
	}
	if again.attempt != result.attempt {
		t.Error("second pass selected a different attempt")
	}
	if search.computed != 3 {
		t.Errorf("second pass recomputed cached attempts: computed = %d", search.computed)
	}
}

func TestKeySearchAcceptsAlreadyStampedHash(t *testing.T) {
	plain, spanData := testSpanData(t, "already stamped")
	preview := newKeySearch(plain, spanData, bmt.NewHasher())
	stampedAttempt, err := preview.attempt(1)
	if err != nil {
		t.Fatal(err)
	}

	stamper := newScriptedStamper(func(uint32, int) uint32 { return 7 })
	stamper.stamps.Put(stampedAttempt.hash, &postage.Stamp{BatchID: stamper.issuer.batchID})

	result, err := newKeySearch(plain, spanData, bmt.NewHasher()).run(stamper, 8)
	if err != nil {
		t.Fatal(err)
	}
	if result.attempt.index != 1 || !result.stamped {
		t.Errorf("selected attempt %d stamped=%v, want attempt 1 stamped", result.attempt.index, result.stamped)
	}
}

func TestKeySearchFallsBackToFewestCollisions(t *testing.T) {
	plain, spanData := testSpanData(t, "fewest collisions")
	buckets := attemptBuckets(t, plain, spanData, 4)
	counts := map[uint32]uint32{buckets[0]: 9, buckets[1]: 4, buckets[2]: 6, buckets[3]: 4}
	if len(counts) != 4 {
		t.Fatalf("fixture attempts share a bucket: %v", buckets)
	}

	stamper := newScriptedStamper(func(bucket uint32, _ int) uint32 { return counts[bucket] })
	result, err := newKeySearch(plain, spanData, bmt.NewHasher()).run(stamper, 4)
	if err != nil {
		t.Fatal(err)
	}
	if result.attempt.index != 1 || result.collisions != 4 {
		t.Errorf("selected attempt %d with %d collisions, want attempt 1 with 4",
			result.attempt.index, result.collisions)
	}
}

func TestBMTStageRedoesSearchWhenBucketMoves(t *testing.T) {
	// Every read of bucket state sees one more collision than the last,
	// so the recheck after the previous chunk commits always misses.
	stamper := newScriptedStamper(func(_ uint32, call int) uint32 { return uint32(3 + call) })
	stage, err := NewBMTStage(1, stamper, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, spanData := testSpanData(t, "optimistic miss")
	original := append([]byte(nil), spanData...)
	args := &FeedArgs{NumberID: 1, Span: uint64(len(spanData) - swarm.SpanSize), Data: spanData,
		PrevChunkLock: semaphore.NewWeighted(1)}
	if err := stage.Feed(context.Background(), args); err != nil {
		t.Fatal(err)
	}

	if stage.MissedOptimisticHashing() != 1 {
		t.Errorf("MissedOptimisticHashing = %d, want 1", stage.MissedOptimisticHashing())
	}
	if args.Hash == nil || args.Key == nil {
		t.Fatal("compacting stage did not set hash and key")
	}
	if bytes.Equal(args.Data, original) {
		t.Error("compacting stage left the payload unencrypted")
	}
	if !args.PrevChunkLock.TryAcquire(1) {
		t.Error("stage did not release the previous chunk's lock")
	}
}

func TestBMTStageWithoutPredecessorSkipsRecheck(t *testing.T) {
	stamper := newScriptedStamper(func(_ uint32, call int) uint32 { return uint32(3 + call) })
	stage, err := NewBMTStage(1, stamper, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, spanData := testSpanData(t, "first chunk")
	if err := stage.Feed(context.Background(), &FeedArgs{Data: spanData}); err != nil {
		t.Fatal(err)
	}
	if stage.MissedOptimisticHashing() != 0 {
		t.Errorf("MissedOptimisticHashing = %d without a predecessor, want 0", stage.MissedOptimisticHashing())
	}
}

func TestBMTStageWaitsForPreviousChunk(t *testing.T) {
	stamper := newScriptedStamper(func(uint32, int) uint32 { return 0 })
	stage, err := NewBMTStage(2, stamper, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	previous := semaphore.NewWeighted(1)
	if !previous.TryAcquire(1) {
		t.Fatal("fresh lock unavailable")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, spanData := testSpanData(t, "waits")
	err = stage.Feed(ctx, &FeedArgs{NumberID: 5, Data: spanData, PrevChunkLock: previous})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Feed with the previous chunk uncommitted returned %v, want context.Canceled", err)
	}
}

func TestBMTStageRejectsInvalidChunkData(t *testing.T) {
	stage, err := NewBMTStage(0, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, size := range []int{0, swarm.SpanSize - 1, swarm.ChunkWithSpanSize + 1} {
		err := stage.Feed(context.Background(), &FeedArgs{Data: make([]byte, size)})
		if !errors.Is(err, swarm.ErrInvalidChunkData) {
			t.Errorf("Feed of %d bytes error = %v, want ErrInvalidChunkData", size, err)
		}
	}
}

func TestBMTStageCompactionNeedsStamper(t *testing.T) {
	if _, err := NewBMTStage(4, nil, nil, nil); err == nil {
		t.Error("NewBMTStage accepted compaction without a stamper")
	}
}
