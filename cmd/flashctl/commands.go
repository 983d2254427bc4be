package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-flashdev/flash"
	"github.com/moffa90/go-flashdev/image"
	"github.com/moffa90/go-flashdev/protocol"
	"github.com/moffa90/go-flashdev/transport"
)

// parseSize accepts plain or 0x-prefixed integers and humanized sizes such as 128KiB.
func parseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return v, nil
	}
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", s)
	}
	return v, nil
}

func parseU32(name, s string) (uint32, error) {
	v, err := parseSize(s)
	if err != nil {
		return 0, errors.Wrap(err, name)
	}
	if v > 1<<32-1 {
		return 0, errors.Errorf("%s %d does not fit 32 bits", name, v)
	}
	return uint32(v), nil
}

// run opens the target, builds a client and calls fn with it.
func run(cmd *cobra.Command, opts *targetOptions, fn func(ctx context.Context, c *flash.Client, h protocol.DeviceHandle) error, extra ...flash.Option) error {
	ctx := cmd.Context()
	t, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = t.close() }()

	if opts.verbose {
		out := cmd.ErrOrStderr()
		extra = append(extra, flash.WithProgressCallback(func(p flash.Progress) {
			fmt.Fprintf(out, "[%s] %5.1f%% %d/%d bad=%d %s\n",
				p.Phase, p.Percentage, p.Current, p.Total, p.BadBlocks, humanize.IBytes(uint64(p.BytesWritten)))
		}))
	}

	return fn(ctx, opts.client(t, extra...), t.handle)
}

// rangeOf resolves --start/--size flags against the device, defaulting to the whole device.
func rangeOf(g flash.Geometry, startStr, sizeStr string) (uint32, uint32, error) {
	start, err := parseU32("--start", startStr)
	if err != nil {
		return 0, 0, err
	}
	if sizeStr == "" {
		total := g.TotalSize
		if limit := uint64(1)<<32 - uint64(g.EraseSize); total > limit {
			total = limit
		}
		if uint64(start) >= total {
			return 0, 0, errors.Errorf("--start 0x%X is beyond the device", start)
		}
		return start, uint32(total - uint64(start)), nil
	}
	size, err := parseU32("--size", sizeStr)
	return start, size, err
}

func newInfoCmd(opts *targetOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Resolve and print device geometry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, c *flash.Client, h protocol.DeviceHandle) error {
				g, err := c.Geometry(ctx, h)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "device:       %s\n", h)
				fmt.Fprintf(out, "write size:   %d\n", g.WriteSize)
				fmt.Fprintf(out, "meta size:    %d\n", g.MetaSize)
				fmt.Fprintf(out, "page stride:  %d\n", g.PageStride())
				fmt.Fprintf(out, "erase size:   %d (%s)\n", g.EraseSize, humanize.IBytes(uint64(g.EraseSize)))
				fmt.Fprintf(out, "pages/block:  %d\n", g.PagesPerBlock())
				fmt.Fprintf(out, "blocks:       %d\n", g.BlockCount())
				fmt.Fprintf(out, "total size:   %d (%s)\n", g.TotalSize, humanize.IBytes(g.TotalSize))
				return nil
			})
		},
	}
}

func newIsBadCmd(opts *targetOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "isbad BLOCK...",
		Short: "Query the bad block marker of erase units",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *flash.Client, h protocol.DeviceHandle) error {
				for _, arg := range args {
					b, err := parseU32("block", arg)
					if err != nil {
						return err
					}
					bad, err := c.IsBlockBad(ctx, h, flash.Block(b))
					if err != nil {
						return err
					}
					state := "good"
					if bad {
						state = "bad"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "block %d: %s\n", b, state)
				}
				return nil
			})
		},
	}
}

func newScanCmd(opts *targetOptions) *cobra.Command {
	var startStr, sizeStr, offsetStr string
	var capacity int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Build a bad block table (DBBT) for a range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, c *flash.Client, h protocol.DeviceHandle) error {
				g, err := c.Geometry(ctx, h)
				if err != nil {
					return err
				}
				start, size, err := rangeOf(g, startStr, sizeStr)
				if err != nil {
					return err
				}
				offset, err := parseU32("--offset", offsetStr)
				if err != nil {
					return err
				}

				table, scanned, err := c.ScanRange(ctx, h, start, size, offset, capacity)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "scanned %d units, %d bad (capacity %d)\n", scanned, table.Len(), table.Capacity)
				for _, b := range table.Entries {
					fmt.Fprintf(out, "  %d\n", b)
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "0", "first byte address, erase unit aligned")
	cmd.Flags().StringVar(&sizeStr, "size", "", "bytes to scan (default: to the end of the device)")
	cmd.Flags().StringVar(&offsetStr, "offset", "0", "partition offset added before converting to block indices")
	cmd.Flags().IntVar(&capacity, "capacity", 64, "maximum bad block table entries")
	return cmd
}

func newEraseCmd(opts *targetOptions) *cobra.Command {
	var block, count uint32

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase a run of erase units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, c *flash.Client, h protocol.DeviceHandle) error {
				if err := c.Erase(ctx, h, flash.Block(block), count); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "erased %d blocks from block %d\n", count, block)
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&block, "block", 0, "first erase unit")
	cmd.Flags().Uint32Var(&count, "count", 1, "number of erase units")
	return cmd
}

func newCleanMarkersCmd(opts *targetOptions) *cobra.Command {
	var startStr, sizeStr string

	cmd := &cobra.Command{
		Use:   "cleanmarkers",
		Short: "Write JFFS2 clean markers to every good erase unit of a range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, c *flash.Client, h protocol.DeviceHandle) error {
				g, err := c.Geometry(ctx, h)
				if err != nil {
					return err
				}
				start, size, err := rangeOf(g, startStr, sizeStr)
				if err != nil {
					return err
				}

				res, err := c.WriteCleanMarkers(ctx, h, start, size)
				fmt.Fprintf(cmd.OutOrStdout(), "clean markers: %d written, %d failed, %d bad skipped\n",
					res.Succeeded, res.Failed, res.Skipped)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "0", "first byte address, erase unit aligned")
	cmd.Flags().StringVar(&sizeStr, "size", "", "bytes to mark (default: to the end of the device)")
	return cmd
}

func newWriteCmd(opts *targetOptions) *cobra.Command {
	var block uint32
	var withOOB, verify bool

	cmd := &cobra.Command{
		Use:   "write IMAGE",
		Short: "Program a raw page image, skipping bad erase units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *flash.Client, h protocol.DeviceHandle) error {
				g, err := c.Geometry(ctx, h)
				if err != nil {
					return err
				}

				img, err := image.Parse(args[0], image.Layout{
					WriteSize:   int(g.WriteSize),
					MetaSize:    int(g.MetaSize),
					IncludesOOB: withOOB,
				})
				if err != nil {
					return err
				}

				if err := c.Program(ctx, h, img, flash.Block(block)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "programmed %d pages (%s) from block %d\n",
					len(img.Pages), humanize.IBytes(uint64(img.Size())), block)
				return nil
			}, flash.WithVerifyAfterWrite(verify))
		},
	}

	cmd.Flags().Uint32Var(&block, "block", 0, "first erase unit")
	cmd.Flags().BoolVar(&withOOB, "oob", false, "image stores out-of-band bytes after every page")
	cmd.Flags().BoolVar(&verify, "verify", false, "read every page back after programming")
	return cmd
}

func newReadCmd(opts *targetOptions) *cobra.Command {
	var page, pages uint32
	var outPath string

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read raw pages, out-of-band bytes included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, c *flash.Client, h protocol.DeviceHandle) error {
				g, err := c.Geometry(ctx, h)
				if err != nil {
					return err
				}

				var out io.Writer = cmd.OutOrStdout()
				if outPath != "" {
					f, err := os.Create(outPath)
					if err != nil {
						return errors.Wrap(err, "failed to create output")
					}
					defer f.Close()
					out = f
				}

				for i := uint32(0); i < pages; i++ {
					addr, err := g.PageAddress(flash.Page(page + i))
					if err != nil {
						return err
					}
					data, err := c.ReadRaw(ctx, h, addr, int(g.PageStride()))
					if err != nil {
						return err
					}
					if outPath != "" {
						if _, err := out.Write(data); err != nil {
							return errors.Wrap(err, "write output")
						}
						continue
					}
					fmt.Fprintf(out, "page %d @ 0x%08X\n%s", page+i, addr, hex.Dump(data))
				}
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&page, "page", 0, "first page")
	cmd.Flags().Uint32Var(&pages, "pages", 1, "number of pages")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write raw bytes to a file instead of a hex dump")
	return cmd
}

func newServeCmd(opts *targetOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the target to remote flashctl clients over TCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			t, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = t.close() }()

			return transport.ListenAndServe(ctx, listen, t.svc, t.attrs)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:5151", "address to listen on")
	return cmd
}
