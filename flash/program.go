package flash

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/moffa90/go-flashdev/image"
	"github.com/moffa90/go-flashdev/protocol"
)

// Program writes img to device h starting at erase unit start:
//  1. Resolve geometry and check the image page size matches the device page stride
//  2. For each unit from start on, skip it if bad, otherwise erase it
//  3. Program the next run of image pages into the erased unit
//  4. Optionally read every page back and compare (WithVerifyAfterWrite)
//
// Bad units are skipped, so the image shifts to the next good unit. If the
// device runs out of units first, a *OutOfSpaceError is returned. The context
// is checked between units.
//
// Example:
//
//	img, _ := image.Parse("rootfs.jffs2", image.Layout{WriteSize: 2048, MetaSize: 64})
//	err := client.Program(ctx, h, img, 16)
func (c *Client) Program(ctx context.Context, h protocol.DeviceHandle, img *image.Image, start Block) error {
	if img == nil {
		return fmt.Errorf("image cannot be nil")
	}

	g, err := c.Geometry(ctx, h)
	if err != nil {
		return fmt.Errorf("resolve geometry: %w", err)
	}

	if img.PageSize() != int(g.PageStride()) {
		return fmt.Errorf("image page size %d does not match device page stride %d (write %d + meta %d)",
			img.PageSize(), g.PageStride(), g.WriteSize, g.MetaSize)
	}

	pagesPerBlock := int(g.PagesPerBlock())
	if pagesPerBlock == 0 {
		return fmt.Errorf("erase size %d is smaller than write size %d", g.EraseSize, g.WriteSize)
	}

	startTime := time.Now()
	totalPages := len(img.Pages)
	blockCount := g.BlockCount()
	written := 0
	bytesWritten := 0
	skipped := 0

	block := start
	for written < totalPages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		if uint64(block) >= blockCount {
			return &OutOfSpaceError{PagesWritten: written, PagesTotal: totalPages, LastBlock: block}
		}

		bad, err := c.IsBlockBad(ctx, h, block)
		if err != nil {
			return fmt.Errorf("check block %d: %w", block, err)
		}
		if bad {
			skipped++
			c.logInfo("skipping bad block", "device", h.String(), "block", block)
			block++
			continue
		}

		c.reportProgress(Progress{
			Phase:        PhaseErasing,
			Current:      written,
			Total:        totalPages,
			Percentage:   percent(written, totalPages),
			BytesWritten: bytesWritten,
			BadBlocks:    skipped,
			ElapsedTime:  time.Since(startTime),
		})

		if err := c.Erase(ctx, h, block, 1); err != nil {
			return fmt.Errorf("erase block %d: %w", block, err)
		}

		first := Page(uint64(block) * uint64(pagesPerBlock))
		for i := 0; i < pagesPerBlock && written < totalPages; i++ {
			page := first + Page(i)
			data := img.Pages[written].Data

			n, err := c.WriteRaw(ctx, h, page, data)
			if err != nil {
				return fmt.Errorf("program page %d (image page %d): %w", page, written, err)
			}

			if c.config.VerifyAfterWrite {
				if err := c.verifyPage(ctx, h, g, page, data); err != nil {
					return err
				}
			}

			written++
			bytesWritten += n
		}

		c.reportProgress(Progress{
			Phase:        PhaseProgramming,
			Current:      written,
			Total:        totalPages,
			Percentage:   percent(written, totalPages),
			BytesWritten: bytesWritten,
			BadBlocks:    skipped,
			ElapsedTime:  time.Since(startTime),
		})

		block++
	}

	c.reportProgress(Progress{
		Phase:        PhaseComplete,
		Current:      written,
		Total:        totalPages,
		Percentage:   100,
		BytesWritten: bytesWritten,
		BadBlocks:    skipped,
		ElapsedTime:  time.Since(startTime),
	})

	c.logInfo("programming complete",
		"device", h.String(),
		"pages", written,
		"bytes", bytesWritten,
		"skipped_blocks", skipped,
		"elapsed", time.Since(startTime).String(),
	)

	return nil
}

// verifyPage reads a programmed page back and compares it with data.
func (c *Client) verifyPage(ctx context.Context, h protocol.DeviceHandle, g Geometry, page Page, data []byte) error {
	addr, err := g.PageAddress(page)
	if err != nil {
		return err
	}

	got, err := c.ReadRaw(ctx, h, addr, len(data))
	if err != nil {
		return fmt.Errorf("verify page %d: %w", page, err)
	}

	if !bytes.Equal(got, data) {
		offset := 0
		for offset < len(data) && got[offset] == data[offset] {
			offset++
		}
		return &VerifyError{Page: page, Address: addr, Offset: offset}
	}

	return nil
}
