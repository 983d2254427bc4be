// Package protocol defines the request/response contract between the flash
// management layer and the Flash Driver Service, and the frame format used to
// carry it over a byte stream.
//
// # Requests
//
// Requests form a closed set of concrete types, each carrying only the fields
// its operation needs:
//
//	protocol.InfoRequest{}
//	protocol.WriteRawRequest{Addr: addr, Data: page}
//	protocol.WriteMetaRequest{Addr: addr, Data: marker}
//	protocol.EraseRequest{Addr: addr, Length: n}
//	protocol.IsBadRequest{Addr: addr}
//	protocol.ReadRawRequest{Addr: addr, Length: n}
//
// Every reply is a Response with a signed status. Negative values are errors
// (see the Status* constants); non-negative values are operation specific:
// a byte count for writes and reads, a bad flag for IsBadRequest.
//
// # Frame Format
//
//	Request:  [SOP][OPCODE][PORT(4)][OBJECT(4)][ADDR(4)][SIZE(4)][LEN(4)][PAYLOAD...][CHECKSUM(2)][EOP]
//	Response: [SOP][STATUS(4)][LEN(4)][PAYLOAD...][CHECKSUM(2)][EOP]
//
// Where:
//   - SOP = Start of Packet (0x01)
//   - EOP = End of Packet (0x17)
//   - all integers are little-endian
//   - CHECKSUM = 16-bit 2's complement sum of every byte between SOP and CHECKSUM
//
// Build frames with BuildRequestFrame and BuildResponseFrame, read them off a
// stream with ReadRequestFrame and ReadResponseFrame, and decode them with
// ParseRequestFrame and ParseResponse:
//
//	frame, err := protocol.BuildRequestFrame(h, protocol.IsBadRequest{Addr: 0x20000})
//	...
//	resp, err := protocol.ParseResponse(reply)
//	if !resp.OK() {
//	    return &protocol.StatusError{Operation: protocol.OpIsBad, Status: resp.Status}
//	}
//
// # Clean Marker
//
// CleanMarker is the 8-byte JFFS2 node (magic 0x1985, type 0x2003, length 8)
// written to the out-of-band area of erased good units.
package protocol
