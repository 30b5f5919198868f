package kvserver

// Store is the storage engine a connection operates on.
// Implementations must be safe for concurrent use: every connection of a
// server shares the same Store.
type Store interface {
	// Get returns the value for key and whether it is present.
	Get(key string) (string, bool)

	// Put stores value for key, inserting or replacing.
	Put(key, value string)

	// Delete removes key and reports whether it was present.
	Delete(key string) bool

	// Exists reports whether key is present.
	Exists(key string) bool
}
