package block

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSigner struct{}

func (fixedSigner) Algorithm() string { return "Ed25519" }
func (fixedSigner) Sign(digest []byte) ([]byte, error) {
	return append([]byte("sig:"), digest...), nil
}

func TestNewLinksToPrevious(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
	g := New(nil, ts, KindGenesis, []byte("genesis"))
	require.Equal(t, uint64(0), g.Index)
	require.Equal(t, GenesisPrevHash, g.PrevHash)
	require.Len(t, g.PrevHash, 64)

	b := New(g, ts.Add(time.Second), KindRecord, []byte("record"))
	assert.Equal(t, uint64(1), b.Index)
	assert.Equal(t, g.BlockHash, b.PrevHash)
	assert.Equal(t, HashPayload([]byte("record")), b.PayloadHash)
	assert.NoError(t, b.CheckHashes())
}

func TestComputeHashIsDeterministic(t *testing.T) {
	ts := time.Date(2025, 1, 2, 0, 0, 0, 0, time.FixedZone("x", 3600))
	a := ComputeHash(3, ts, "p", "q")
	b := ComputeHash(3, ts.UTC(), "p", "q")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ComputeHash(4, ts, "p", "q"))
}

func TestCheckHashesDetectsTampering(t *testing.T) {
	b := New(nil, time.Now(), KindRecord, []byte("body"))
	b.Payload[0] ^= 0xff
	require.Error(t, b.CheckHashes())

	c := New(nil, time.Now(), KindRecord, []byte("body"))
	c.Index = 9
	require.Error(t, c.CheckHashes())
}

func TestSignCoversPayloadHash(t *testing.T) {
	b := New(nil, time.Now(), KindRecord, []byte("body"))
	require.NoError(t, b.Sign("doc-1", fixedSigner{}))
	digest, err := b.Digest()
	require.NoError(t, err)
	assert.Equal(t, "doc-1", b.Signer)
	assert.Equal(t, "Ed25519", b.SigAlgorithm)
	assert.Equal(t, append([]byte("sig:"), digest...), b.Signature)
}

func TestSerializeRoundTrip(t *testing.T) {
	b := New(nil, time.Now(), KindActor, []byte(`{"id":"a"}`))
	require.NoError(t, b.Sign("a", fixedSigner{}))
	data, err := b.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"prevHash"`)

	got, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, b.BlockHash, got.BlockHash)
	assert.True(t, b.Timestamp.Equal(got.Timestamp))
	assert.NoError(t, got.CheckHashes())
}

func TestMerkleRoot(t *testing.T) {
	assert.Equal(t, "", MerkleRoot(nil))
	assert.Equal(t, "aa", MerkleRoot([]string{"aa"}))

	pair := MerkleRoot([]string{"aa", "bb"})
	assert.Len(t, pair, 64)
	assert.NotEqual(t, pair, MerkleRoot([]string{"bb", "aa"}))

	// an odd leaf is paired with itself
	odd := MerkleRoot([]string{"aa", "bb", "cc"})
	assert.Equal(t, MerkleRoot([]string{pair, MerkleRoot([]string{"cc", "cc"})}), odd)
}
