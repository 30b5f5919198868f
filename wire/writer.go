package wire

import (
	"bufio"
	"io"
	"strconv"

	"github.com/pior/kvserver/internal/bufpool"
)

// Typical frame is well under 256 bytes; keep up to 64KB buffers around.
var buffers = bufpool.New(256, 64*1024)

// InvalidMessageError is returned when a message cannot be encoded.
// Nothing has been written when it is returned.
//
// Common causes:
//   - Status outside the defined set
//   - Key longer than MaxKeyBlock
//   - Value longer than MaxValueBlock
//
// Connection handling: connection is still valid
type InvalidMessageError struct {
	Message string
}

func (e *InvalidMessageError) Error() string {
	return "invalid message: " + e.Message
}

// ShouldCloseConnection returns false - nothing was written
func (e *InvalidMessageError) ShouldCloseConnection() bool {
	return false
}

// ValidateMessage checks that msg can be framed.
func ValidateMessage(msg *Message) error {
	if !msg.Status.Valid() {
		return &InvalidMessageError{Message: "unknown status " + strconv.Itoa(int(msg.Status))}
	}
	if len(msg.Key) > MaxKeyBlock {
		return &InvalidMessageError{Message: "key exceeds maximum block size"}
	}
	if len(msg.Value) > MaxValueBlock {
		return &InvalidMessageError{Message: "value exceeds maximum block size"}
	}
	return nil
}

// WriteMessage serializes msg to wire format and writes it to w.
// Format: <status> <clientID> <seq> <keyLen> <valueLen>\r\n<key>\r\n[<value>\r\n]
//
// Write failures are returned as *ConnectionError.
//
// Performance considerations:
//   - Uses bufio.Writer when available, flushing once per frame
//   - Falls back to a pooled buffer and a single Write for other writers
func WriteMessage(w io.Writer, msg *Message) error {
	if err := ValidateMessage(msg); err != nil {
		return err
	}

	if bw, ok := w.(*bufio.Writer); ok {
		appendFrame(bw, msg)
		if err := bw.Flush(); err != nil {
			return &ConnectionError{Op: "write", Err: err}
		}
		return nil
	}

	buf := buffers.Get()
	defer buffers.Put(buf)

	appendFrame(buf, msg)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// WriteHandshake writes the handshake line announcing clientID.
func WriteHandshake(w io.Writer, clientID int) error {
	line := strconv.AppendInt(nil, int64(clientID), 10)
	line = append(line, CRLF...)

	if _, err := w.Write(line); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	if bw, ok := w.(*bufio.Writer); ok {
		if err := bw.Flush(); err != nil {
			return &ConnectionError{Op: "write", Err: err}
		}
	}
	return nil
}

type frameWriter interface {
	io.Writer
	io.StringWriter
}

func appendFrame(w frameWriter, msg *Message) {
	valueLen := NoValue
	if msg.HasValue() {
		valueLen = len(msg.Value)
	}

	w.WriteString(msg.Status.String())
	w.WriteString(Space)
	w.WriteString(strconv.Itoa(msg.ClientID))
	w.WriteString(Space)
	w.WriteString(strconv.Itoa(msg.Seq))
	w.WriteString(Space)
	w.WriteString(strconv.Itoa(len(msg.Key)))
	w.WriteString(Space)
	w.WriteString(strconv.Itoa(valueLen))
	w.WriteString(CRLF)

	w.WriteString(msg.Key)
	w.WriteString(CRLF)

	if msg.HasValue() {
		w.Write(msg.Value)
		w.WriteString(CRLF)
	}
}
