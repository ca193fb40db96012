// Package limits provides centralized datagram size constants and validation
// functions for the toxrtx receive path.
//
// # Size Bounds
//
//   - MinRTPHeader (12 bytes): The fixed RTP header. Shorter datagrams are
//     rejected before any parsing is attempted.
//
//   - MaxDatagram (65507 bytes): The largest UDP payload of an IPv4 datagram.
//
//   - ReadBufferSize: The receive buffer used by transports, one byte larger
//     than MaxDatagram so truncated reads can be told apart from full ones.
//
// # Validation Functions
//
//	err := limits.ValidateRTPDatagram(data)
//	if err != nil {
//	    // ErrDatagramEmpty, ErrDatagramTooShort or ErrDatagramTooLarge
//	}
//
// For custom bounds, use the generic ValidateDatagramSize function:
//
//	err := limits.ValidateDatagramSize(data, 4, 1500)
//
// All errors wrap one of the package sentinels and can be matched with
// errors.Is.
package limits
