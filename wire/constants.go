package wire

// StatusType identifies the kind of a message: a request kind sent by a
// client, or a response kind sent by the server.
//
// The set is closed. Unknown tokens on the wire are reported as malformed
// frames by ReadMessage.
type StatusType uint8

const (
	// StatusGet reads a key.
	//
	// Wire format: GET <clientID> <seq> <keyLen> -1\r\n<key>\r\n
	//
	// Responses: GET_SUCCESS (with value), GET_ERROR (no value).
	StatusGet StatusType = iota + 1

	// StatusPut stores a key, or deletes it when the value is absent or empty.
	//
	// Wire format: PUT <clientID> <seq> <keyLen> <valueLen>\r\n<key>\r\n<value>\r\n
	//
	// Responses: PUT_SUCCESS, PUT_UPDATE, PUT_ERROR, DELETE_SUCCESS, DELETE_ERROR.
	StatusPut

	// StatusClose asks the server to close the connection. No response.
	StatusClose

	StatusGetSuccess
	StatusGetError
	StatusPutSuccess
	StatusPutUpdate
	StatusPutError
	StatusDeleteSuccess
	StatusDeleteError
)

var statusNames = [...]string{
	StatusGet:           "GET",
	StatusPut:           "PUT",
	StatusClose:         "CLOSE",
	StatusGetSuccess:    "GET_SUCCESS",
	StatusGetError:      "GET_ERROR",
	StatusPutSuccess:    "PUT_SUCCESS",
	StatusPutUpdate:     "PUT_UPDATE",
	StatusPutError:      "PUT_ERROR",
	StatusDeleteSuccess: "DELETE_SUCCESS",
	StatusDeleteError:   "DELETE_ERROR",
}

var statusByName = func() map[string]StatusType {
	m := make(map[string]StatusType, len(statusNames))
	for s, name := range statusNames {
		if name != "" {
			m[name] = StatusType(s)
		}
	}
	return m
}()

// String returns the wire token of the status.
func (s StatusType) String() string {
	if s.Valid() {
		return statusNames[s]
	}
	return "UNKNOWN"
}

// Valid reports whether s is one of the defined statuses.
func (s StatusType) Valid() bool {
	return s >= StatusGet && s <= StatusDeleteError
}

// IsRequest reports whether s is a kind a client sends.
func (s StatusType) IsRequest() bool {
	return s == StatusGet || s == StatusPut || s == StatusClose
}

// IsError reports whether s is an error response kind.
func (s StatusType) IsError() bool {
	return s == StatusGetError || s == StatusPutError || s == StatusDeleteError
}

// ParseStatus returns the status for a wire token.
func ParseStatus(token string) (StatusType, bool) {
	s, ok := statusByName[token]
	return s, ok
}

// Protocol delimiters
const (
	// CRLF terminates every header line and every block.
	CRLF = "\r\n"

	// Space separates header tokens.
	Space = " "
)

// Frame limits. These bound what the reader will allocate for a single frame
// and are independent of the key/value rules the server enforces.
const (
	// MaxKeyBlock is the largest key block accepted on the wire.
	MaxKeyBlock = 250

	// MaxValueBlock is the largest value block accepted on the wire (1MB).
	MaxValueBlock = 1024 * 1024

	// MaxHeaderLine is the longest header or handshake line accepted,
	// terminator included. Longer lines are discarded up to their newline.
	MaxHeaderLine = 1024

	// NoValue is the value length sent when the value is absent.
	NoValue = -1
)
