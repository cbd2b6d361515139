package bmp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/bmppatch/internal/samples"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		core      uint16
		info      uint16
		want      Variant
		ambiguous bool
	}{
		{name: "core", core: 1, info: 0xFFFF, want: VariantCore},
		{name: "info", core: 0, info: 1, want: VariantInfo},
		{name: "neither", core: 2, info: 3, want: VariantUnknown},
		{name: "both prefers info", core: 1, info: 1, want: VariantInfo, ambiguous: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.core, tt.info)
			require.Equal(t, tt.want, d.Variant)
			require.Equal(t, tt.ambiguous, d.Ambiguous)
			require.Equal(t, tt.core, d.CorePlanes)
			require.Equal(t, tt.info, d.InfoPlanes)
		})
	}
}

func TestDetectSamples(t *testing.T) {
	corpus := samples.Corpus()

	d, err := Detect(openSample(t, corpus[samples.CoreFileName]))
	require.NoError(t, err)
	require.Equal(t, VariantCore, d.Variant)

	d, err = Detect(openSample(t, corpus[samples.InfoFileName]))
	require.NoError(t, err)
	require.Equal(t, VariantInfo, d.Variant)
	require.False(t, d.Ambiguous)

	d, err = Detect(openSample(t, corpus[samples.UnknownVariantName]))
	require.NoError(t, err)
	require.Equal(t, VariantUnknown, d.Variant)
}

func TestDetectShortFileReadsZero(t *testing.T) {
	d, err := Detect(openSample(t, []byte("BM")))
	require.NoError(t, err)
	require.Equal(t, VariantUnknown, d.Variant)
	require.Zero(t, d.CorePlanes)
	require.Zero(t, d.InfoPlanes)
}
