// Package sim provides an in-memory NAND flash device that implements the
// Flash Driver Service and Attribute Service interfaces.
//
// The device keeps a raw image of every page with its out-of-band area, so
// two address spaces are in use, as on the real driver:
//
//	raw:  page*(writeSize+metaSize)   writeRaw, readRaw
//	data: block*eraseSize             erase, isBad, writeMeta
//
// Bad units and forced statuses can be injected for testing, and every
// request is counted per opcode:
//
//	dev := sim.New(sim.DefaultConfig())
//	dev.MarkBad(1, 3)
//	dev.InjectStatus(protocol.OpWriteRaw, addr, 2047)
//
//	client := flash.New(dev, dev)
//	table, scanned, err := client.ScanRange(ctx, h, 0, 4*erase, 0, 16)
//	fmt.Println(dev.Requests(protocol.OpIsBad))
package sim
