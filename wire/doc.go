// Package wire implements the framing of the kvserver protocol.
//
// Every request and response is a Message. A frame is a header line followed
// by a key block and an optional value block, each terminated by CRLF:
//
//	PUT 7 42 3 5\r\n
//	foo\r\n
//	hello\r\n
//
// The header fields are the status token, the client id, the sequence number,
// the key length and the value length. A value length of -1 (NoValue) means
// the value is absent and no value block follows:
//
//	GET 7 43 3 -1\r\n
//	foo\r\n
//
// Blocks are length-prefixed, so keys and values may contain spaces or CRLF.
// Whether a key is acceptable is decided by the server, not by the framing.
//
// # Handshake
//
// Right after accepting a connection the server sends the decimal client id on
// a line of its own, unsolicited and unacknowledged:
//
//	7\r\n
//
// Use WriteHandshake and ReadHandshake for it.
//
// # Serialization and Parsing
//
//	err := wire.WriteMessage(conn, wire.NewMessage(wire.StatusGet, 7, 43, "foo", nil))
//
//	msg, err := wire.ReadMessage(bufio.NewReader(conn))
//	if err != nil {
//	    if wire.ShouldCloseConnection(err) {
//	        conn.Close()
//	        return err
//	    }
//	    // malformed frame, already consumed
//	}
//
// # Error Handling
//
//   - ParseError: malformed frame, dropped, connection can be REUSED
//   - ConnectionError: I/O failure, CLOSE connection
//   - InvalidMessageError: message cannot be encoded, nothing written
package wire
