package engine

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignatureDedupFirstOccurrenceIsNew(t *testing.T) {
	d := newSignatureDedup()
	require.True(t, d.Add("sig1"))
	require.False(t, d.Add("sig1"))
	require.True(t, d.Add("sig2"))
}

func TestSignatureDedupTrimsToFloorOnceOverCap(t *testing.T) {
	d := newSignatureDedup()
	for i := 0; i < dedupCap+50; i++ {
		d.Add("sig-" + strconv.Itoa(i))
	}
	require.LessOrEqual(t, d.Len(), dedupCap)
	require.GreaterOrEqual(t, d.Len(), dedupTrimTo-1)
}

func TestSignatureDedupNilSharedStoreNeverConsulted(t *testing.T) {
	d := newSignatureDedup().withSharedStore(nil)
	require.True(t, d.Add("onlyLocal"))
	require.False(t, d.Add("onlyLocal"))
}
