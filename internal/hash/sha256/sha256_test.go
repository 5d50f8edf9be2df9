package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestStampSetsContentHash(t *testing.T) {
	t.Parallel()

	h := New()
	r := rfp.Record{Region: "TX", SourceID: "RFP-1", Title: "Economic Impact Study", Agency: "Comptroller"}
	fp, err := h.Stamp(&r)
	require.NoError(t, err)
	require.Len(t, r.ContentHash, 64)
	require.Len(t, fp, 64)
	require.NotEqual(t, r.ContentHash, fp)

	want, err := h.Hash([]byte("tx\x1frfp-1\x1feconomic impact study"))
	require.NoError(t, err)
	require.Equal(t, want, r.ContentHash)

	moved := r
	moved.Agency = "Treasury"
	fp2, err := h.Stamp(&moved)
	require.NoError(t, err)
	require.Equal(t, r.ContentHash, moved.ContentHash)
	require.NotEqual(t, fp, fp2)
}
