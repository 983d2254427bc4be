// Package flash provides a device management layer over a raw flash device
// reached through the Flash Driver Service.
//
// # Overview
//
// The package turns a request/response driver service into addressable
// operations:
//   - Resolving and caching device geometry (page, out-of-band and erase sizes)
//   - Raw page writes, out-of-band (meta) writes and raw reads
//   - Erasing runs of erase units
//   - Querying bad block markers and building a bounded bad block table (DBBT)
//   - Writing JFFS2 clean markers into every good erase unit
//   - Programming a page image while skipping bad units
//
// # Address Spaces
//
// Two address spaces are in use, and each operation documents which one it takes:
//
//	raw:  page * (MetaSize + WriteSize)    WriteRaw, ReadRaw
//	data: block * EraseSize                Erase, IsBad, WriteMeta, ScanRange, WriteCleanMarkers
//
// Page and Block indices are distinct types so that the two are not confused.
//
// # Basic Usage
//
//	dev := sim.New(sim.DefaultConfig())
//	client := flash.New(dev, dev)
//
//	g, err := client.Geometry(ctx, h)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	table, scanned, err := client.ScanRange(ctx, h, 0, uint32(g.TotalSize), 0, 64)
//	var full *flash.CapacityExceededError
//	if errors.As(err, &full) {
//	    log.Fatalf("flash unusable: %v", err)
//	}
//
// # Geometry Cache
//
// Resolved geometry is kept in a GeometryCache. By default it holds a single
// device, so resolving another handle evicts the previous one. Use
// WithCacheSize to keep several devices resolved, or WithGeometryCache to
// share one cache between clients:
//
//	client := flash.New(svc, attrs, flash.WithCacheSize(4))
//
// # Error Handling
//
// The package returns typed errors for inspection with errors.As:
//   - *TransportError: the request or reply could not be delivered
//   - *DeviceError: the service returned a negative status
//   - *ShortWriteError / *ShortReadError: byte count mismatch
//   - *CapacityExceededError: more bad units than the table can hold
//   - *NotResolvedError: geometry could not be obtained
//   - *AlignmentError / *AddressError: an address is misaligned or does not fit 32 bits
//   - *PartialFailure: some units of a clean marker pass failed
//   - *OutOfSpaceError / *VerifyError: Program ran out of good units or read back differs
//
// # Thread Safety
//
// Client is not safe for concurrent use. The services it wraps may be.
package flash
