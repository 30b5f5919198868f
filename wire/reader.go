package wire

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
)

// Pre-allocated byte slices for comparisons (avoid allocation in hot path)
var (
	crlfBytes = []byte(CRLF)
	lfBytes   = []byte("\n")
)

// ReadMessage reads and parses a single frame from r.
// Frame format: <status> <clientID> <seq> <keyLen> <valueLen>\r\n<key>\r\n[<value>\r\n]
//
// Errors:
//   - *ParseError: the frame was malformed and has been dropped; the
//     connection is still usable
//   - *ConnectionError: I/O failure (including io.EOF), the connection must
//     be closed
//
// Performance considerations:
//   - Uses ReadSlice for zero-allocation line reading
//   - Reads each block with its terminator in a single read
func ReadMessage(r *bufio.Reader) (*Message, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}

	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, &ParseError{Message: "empty header line"}
	}
	if len(fields) != 5 {
		return nil, &ParseError{Message: "expected 5 header fields, got " + strconv.Itoa(len(fields))}
	}

	// Lengths first: once they are known, a bad header can still skip its
	// blocks and keep the stream aligned on frame boundaries.
	keyLen, err := strconv.Atoi(string(fields[3]))
	if err != nil {
		return nil, &ParseError{Message: "invalid key length", Err: err}
	}
	if keyLen < 0 || keyLen > MaxKeyBlock {
		return nil, &ParseError{Message: "key length out of range: " + strconv.Itoa(keyLen)}
	}

	valueLen, err := strconv.Atoi(string(fields[4]))
	if err != nil {
		return nil, &ParseError{Message: "invalid value length", Err: err}
	}
	if valueLen < NoValue || valueLen > MaxValueBlock {
		return nil, &ParseError{Message: "value length out of range: " + strconv.Itoa(valueLen)}
	}

	status, ok := ParseStatus(string(fields[0]))
	if !ok {
		return nil, skipBlocks(r, keyLen, valueLen, &ParseError{Message: "unknown status " + strconv.Quote(string(fields[0]))})
	}

	clientID, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return nil, skipBlocks(r, keyLen, valueLen, &ParseError{Message: "invalid client id", Err: err})
	}

	seq, err := strconv.Atoi(string(fields[2]))
	if err != nil {
		return nil, skipBlocks(r, keyLen, valueLen, &ParseError{Message: "invalid seq", Err: err})
	}

	key, err := readBlock(r, keyLen)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Status:   status,
		ClientID: clientID,
		Seq:      seq,
		Key:      string(key),
	}

	if valueLen != NoValue {
		msg.Value, err = readBlock(r, valueLen)
		if err != nil {
			return nil, err
		}
	}

	return msg, nil
}

// ReadHandshake reads the handshake line sent by the server right after
// accepting a connection and returns the client id it announces.
func ReadHandshake(r *bufio.Reader) (int, error) {
	line, err := readLine(r)
	if err != nil {
		return 0, err
	}

	id, err := strconv.Atoi(string(bytes.TrimSpace(line)))
	if err != nil {
		return 0, &ParseError{Message: "invalid handshake", Err: err}
	}
	return id, nil
}

// readLine reads one line and strips its terminator.
// A line longer than MaxHeaderLine is discarded through its newline and
// reported as a ParseError, so a peer cannot make the reader buffer without
// bound.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	switch {
	case err == bufio.ErrBufferFull:
		line, err = readLongLine(r, line)
	case err == nil && len(line) > MaxHeaderLine:
		return nil, errHeaderTooLong()
	}
	if err != nil {
		if _, ok := err.(*ParseError); ok {
			return nil, err
		}
		return nil, &ConnectionError{Op: "read", Err: err}
	}

	if bytes.HasSuffix(line, crlfBytes) {
		return line[:len(line)-len(crlfBytes)], nil
	}
	return bytes.TrimSuffix(line, lfBytes), nil
}

// readLongLine continues a line that did not fit in the reader's buffer.
func readLongLine(r *bufio.Reader, head []byte) ([]byte, error) {
	if len(head) > MaxHeaderLine {
		return nil, discardLine(r)
	}
	line := append([]byte(nil), head...)

	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > MaxHeaderLine {
			if err == nil {
				return nil, errHeaderTooLong()
			}
			if err == bufio.ErrBufferFull {
				return nil, discardLine(r)
			}
			return nil, err
		}
		line = append(line, chunk...)

		switch err {
		case nil:
			return line, nil
		case bufio.ErrBufferFull:
		default:
			return nil, err
		}
	}
}

// discardLine drops bytes up to and including the next newline.
func discardLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		switch err {
		case nil:
			return errHeaderTooLong()
		case bufio.ErrBufferFull:
		default:
			return err
		}
	}
}

func errHeaderTooLong() error {
	return &ParseError{Message: "header line longer than " + strconv.Itoa(MaxHeaderLine) + " bytes"}
}

// skipBlocks discards the key and value blocks announced by a header that
// was otherwise rejected, then returns perr.
func skipBlocks(r *bufio.Reader, keyLen, valueLen int, perr *ParseError) error {
	n := keyLen + len(CRLF)
	if valueLen != NoValue {
		n += valueLen + len(CRLF)
	}
	if _, err := r.Discard(n); err != nil {
		return &ConnectionError{Op: "read", Err: err}
	}
	return perr
}

// readBlock reads a data block of n bytes followed by CRLF.
func readBlock(r *bufio.Reader, n int) ([]byte, error) {
	data := make([]byte, n+len(CRLF))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}

	if !bytes.HasSuffix(data, crlfBytes) {
		return nil, &ParseError{Message: "invalid block terminator"}
	}

	return data[:n], nil
}
