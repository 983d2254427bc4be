package image

// Layout describes how an image file maps onto device pages.
type Layout struct {
	// WriteSize is the data bytes per page
	WriteSize int

	// MetaSize is the out-of-band bytes per page
	MetaSize int

	// IncludesOOB is true when the file stores WriteSize+MetaSize bytes per
	// page. Otherwise the file holds page data only and the out-of-band area
	// of every page is filled with ErasedByte.
	IncludesOOB bool
}

// PageSize is the size of one page record, data plus out-of-band bytes.
func (l Layout) PageSize() int {
	return l.WriteSize + l.MetaSize
}

// chunkSize is the number of file bytes consumed per page.
func (l Layout) chunkSize() int {
	if l.IncludesOOB {
		return l.PageSize()
	}
	return l.WriteSize
}

// Image represents a raw flash image split into page records.
type Image struct {
	// Layout is the layout the image was split with
	Layout Layout

	// Pages contains all pages to be programmed, in order
	Pages []*Page

	// SourceSize is the number of bytes read from the source
	SourceSize int64
}

// PageSize is the size of every page record in the image.
func (img *Image) PageSize() int {
	return img.Layout.PageSize()
}

// Size is the number of bytes the image occupies on the device, out-of-band included.
func (img *Image) Size() int {
	return len(img.Pages) * img.PageSize()
}

// Page represents a single page record: WriteSize data bytes followed by
// MetaSize out-of-band bytes.
type Page struct {
	// Index is the page position within the image (0-based)
	Index int

	// Data is the page record to be programmed
	Data []byte
}

// Blank reports whether every byte of the page is ErasedByte.
func (p *Page) Blank() bool {
	for _, b := range p.Data {
		if b != ErasedByte {
			return false
		}
	}
	return true
}
