package image

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReaderDataOnly(t *testing.T) {
	layout := Layout{WriteSize: 8, MetaSize: 4}
	raw := []byte{
		1, 2, 3, 4, 5, 6, 7, 8,
		9, 10, 11,
	}

	img, err := ParseReader(bytes.NewReader(raw), layout)
	require.NoError(t, err)

	require.Len(t, img.Pages, 2)
	assert.Equal(t, 12, img.PageSize())
	assert.Equal(t, 24, img.Size())
	assert.Equal(t, int64(len(raw)), img.SourceSize)

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0xFF, 0xFF, 0xFF, 0xFF}, img.Pages[0].Data)
	assert.Equal(t, []byte{9, 10, 11, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, img.Pages[1].Data)
	assert.Equal(t, 1, img.Pages[1].Index)
}

func TestParseReaderWithOOB(t *testing.T) {
	layout := Layout{WriteSize: 4, MetaSize: 2, IncludesOOB: true}
	raw := []byte{
		1, 2, 3, 4, 0xAA, 0xBB,
		5, 6, 7, 8, 0xCC, 0xDD,
	}

	img, err := ParseReader(bytes.NewReader(raw), layout)
	require.NoError(t, err)

	require.Len(t, img.Pages, 2)
	assert.Equal(t, raw[:6], img.Pages[0].Data)
	assert.Equal(t, raw[6:], img.Pages[1].Data)
}

func TestParseReaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		layout Layout
		errMsg string
	}{
		{
			name:   "empty image",
			raw:    nil,
			layout: Layout{WriteSize: 2048, MetaSize: 64},
			errMsg: "empty image",
		},
		{
			name:   "zero write size",
			raw:    []byte{1},
			layout: Layout{MetaSize: 64},
			errMsg: "invalid write size",
		},
		{
			name:   "negative meta size",
			raw:    []byte{1},
			layout: Layout{WriteSize: 2048, MetaSize: -1},
			errMsg: "invalid meta size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReader(bytes.NewReader(tt.raw), tt.layout)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rootfs.img")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0x5A}, 20), 0o644))

	img, err := Parse(path, Layout{WriteSize: 16, MetaSize: 4})
	require.NoError(t, err)
	require.Len(t, img.Pages, 2)
	assert.False(t, img.Pages[0].Blank())

	_, err = Parse(filepath.Join(t.TempDir(), "missing.img"), Layout{WriteSize: 16})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open image")
}

func TestPageBlank(t *testing.T) {
	assert.True(t, (&Page{Data: []byte{0xFF, 0xFF}}).Blank())
	assert.False(t, (&Page{Data: []byte{0xFF, 0x00}}).Blank())
}
