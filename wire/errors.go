package wire

import (
	"errors"
	"fmt"
)

// Error types for wire operations.
// They tell the caller whether the stream is still usable.

// ParseError reports a malformed frame.
// The frame is dropped and the stream can continue with the next frame.
//
// What has been consumed depends on how far the header parsed:
//   - Both block lengths valid (bad status, client id or seq): the header and
//     its blocks are consumed, the stream stays on a frame boundary
//   - A length missing, non-numeric or out of range: only the header line is
//     consumed. The announced blocks stay in the stream and are read as
//     header lines, so a block that itself holds a well-formed frame is
//     decoded as one
//   - Header line longer than MaxHeaderLine: discarded through its newline
//
// Common causes:
//   - Wrong number of header tokens
//   - Unknown status token
//   - Non-numeric client id, seq or lengths
//   - Block length above MaxKeyBlock or MaxValueBlock
//   - Header line longer than MaxHeaderLine
//   - Block not terminated by CRLF
//
// Connection handling: KEEP the connection, discard the frame
type ParseError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse error: " + e.Message + ": " + e.Err.Error()
	}
	return "parse error: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns false - a bad frame does not break the stream
func (e *ParseError) ShouldCloseConnection() bool {
	return false
}

// ConnectionError wraps underlying I/O errors.
//
// Common causes:
//   - Peer closed the connection (io.EOF)
//   - Read deadline exceeded
//   - Connection reset
//
// Connection handling: connection is broken, CLOSE it
type ConnectionError struct {
	Op  string // Operation that failed (read, write)
	Err error  // Underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - connection errors mean connection is broken
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by errors that know whether the
// connection should be closed.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err requires closing the connection.
//
// Returns false for nil and ParseError. Unknown error types return true.
//
// Usage:
//
//	msg, err := ReadMessage(r)
//	if err != nil {
//	    if ShouldCloseConnection(err) {
//	        conn.Close()
//	        return err
//	    }
//	    // malformed frame, keep reading
//	}
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	return true
}
