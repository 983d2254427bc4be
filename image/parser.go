package image

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
)

// ErasedByte is the value of an erased flash byte, used for padding.
const ErasedByte = 0xFF

// DefaultPageCapacity is the default initial capacity for the pages slice
const DefaultPageCapacity = 256

// Parse splits the image file at path into page records.
//
// Example:
//
//	img, err := image.Parse("rootfs.jffs2", image.Layout{WriteSize: 2048, MetaSize: 64})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d pages\n", len(img.Pages))
func Parse(path string, layout Layout) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open image")
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f, layout)
}

// ParseReader splits an image read from r into page records. A trailing partial
// page is padded with ErasedByte; data-only images get an erased out-of-band area.
//
// Example:
//
//	img, err := image.ParseReader(bytes.NewReader(raw), layout)
func ParseReader(r io.Reader, layout Layout) (*Image, error) {
	if layout.WriteSize <= 0 {
		return nil, errors.Errorf("invalid write size %d", layout.WriteSize)
	}
	if layout.MetaSize < 0 {
		return nil, errors.Errorf("invalid meta size %d", layout.MetaSize)
	}

	img := &Image{
		Layout: layout,
		Pages:  make([]*Page, 0, DefaultPageCapacity),
	}

	chunk := layout.chunkSize()
	buf := make([]byte, chunk)

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			img.SourceSize += int64(n)
			img.Pages = append(img.Pages, newPage(len(img.Pages), buf[:n], layout))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read page %d", len(img.Pages))
		}
	}

	if len(img.Pages) == 0 {
		return nil, errors.New("empty image")
	}

	return img, nil
}

// newPage builds a full page record from chunk, padding with ErasedByte.
func newPage(index int, chunk []byte, layout Layout) *Page {
	data := bytes.Repeat([]byte{ErasedByte}, layout.PageSize())
	copy(data, chunk)
	return &Page{Index: index, Data: data}
}
