package wire

// Message is one request or response.
// It is a plain data container; serialization lives in WriteMessage and
// ReadMessage.
type Message struct {
	// Status is the request or response kind.
	Status StatusType

	// ClientID identifies the originating client. Responses echo it.
	ClientID int

	// Seq identifies the request instance on its connection. Responses echo it.
	Seq int

	// Key is the key operated on. It may be empty or invalid on the wire;
	// validation is the server's job.
	Key string

	// Value is the value block. nil means absent, which is distinct on the
	// wire from an empty value.
	Value []byte
}

// NewMessage creates a message.
//
// Usage:
//
//	// Put
//	req := NewMessage(StatusPut, clientID, seq, "mykey", []byte("value"))
//
//	// Delete (put without value)
//	req = NewMessage(StatusPut, clientID, seq, "mykey", nil)
//
//	// Get
//	req = NewMessage(StatusGet, clientID, seq, "mykey", nil)
func NewMessage(status StatusType, clientID, seq int, key string, value []byte) *Message {
	return &Message{
		Status:   status,
		ClientID: clientID,
		Seq:      seq,
		Key:      key,
		Value:    value,
	}
}

// Reply builds the response to m. ClientID, Seq and Key are carried over.
func (m *Message) Reply(status StatusType, value []byte) *Message {
	return &Message{
		Status:   status,
		ClientID: m.ClientID,
		Seq:      m.Seq,
		Key:      m.Key,
		Value:    value,
	}
}

// HasValue reports whether the value block is present.
func (m *Message) HasValue() bool {
	return m.Value != nil
}

// IsSuccess reports whether m is a success response.
func (m *Message) IsSuccess() bool {
	switch m.Status {
	case StatusGetSuccess, StatusPutSuccess, StatusPutUpdate, StatusDeleteSuccess:
		return true
	default:
		return false
	}
}
