package kvserver

import (
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/pior/kvserver/wire"
)

// Handler turns validated requests into store operations and builds the
// response. Every response carries the request's client id and seq.
type Handler struct {
	store  Store
	logger *log.Logger
}

// NewHandler creates a handler over store. A nil logger uses log.Default().
func NewHandler(store Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{store: store, logger: logger}
}

// HandlePut serves a PUT request: a put, an update, or a delete when the
// value is absent or empty.
//
// Outcomes:
//   - PUT_ERROR: invalid key, or value of MaxValueLength characters or more
//   - DELETE_SUCCESS / DELETE_ERROR: delete intent, key removed or not found
//   - PUT_UPDATE: key existed and was overwritten
//   - PUT_SUCCESS: key was inserted
func (h *Handler) HandlePut(msg *wire.Message) *wire.Message {
	key := msg.Key

	if !IsValidKey(key) || !isValidValue(msg.Value) {
		h.logger.Debug("PUT_ERROR", "key", key, "length", utf8.RuneCount(msg.Value))
		return msg.Reply(wire.StatusPutError, msg.Value)
	}

	if IsDeleteIntent(msg.Value) {
		if !h.store.Delete(key) {
			h.logger.Debug("DELETE_ERROR", "key", key)
			return msg.Reply(wire.StatusDeleteError, msg.Value)
		}
		h.logger.Debug("DELETE_SUCCESS", "key", key)
		return msg.Reply(wire.StatusDeleteSuccess, msg.Value)
	}

	status := wire.StatusPutSuccess
	if h.store.Exists(key) {
		status = wire.StatusPutUpdate
	}
	h.store.Put(key, string(msg.Value))

	h.logger.Debug(status.String(), "key", key, "value", string(msg.Value))
	return msg.Reply(status, msg.Value)
}

// HandleGet serves a read. A missing key and a key holding an empty value
// both produce GET_ERROR without value.
func (h *Handler) HandleGet(msg *wire.Message) *wire.Message {
	key := msg.Key

	if !IsValidKey(key) {
		h.logger.Debug("GET_ERROR", "key", key, "reason", "invalid key")
		return msg.Reply(wire.StatusGetError, nil)
	}

	value, ok := h.store.Get(key)
	if !ok || value == "" {
		h.logger.Debug("GET_ERROR", "key", key, "reason", "not found")
		return msg.Reply(wire.StatusGetError, nil)
	}

	h.logger.Debug("GET_SUCCESS", "key", key, "value", value)
	return msg.Reply(wire.StatusGetSuccess, []byte(value))
}
