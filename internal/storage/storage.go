package storage

type ExpiryStatus int

const (
	// ExpNotFound means that the key does not exist
	ExpNotFound ExpiryStatus = -2
	// ExpNoTimeout means that the key exists, but it does not have a TTL
	ExpNoTimeout ExpiryStatus = -1
	// ExpActive means that the key has an active lifetime
	ExpActive ExpiryStatus = 1
)

// Observer is told when a whole value enters or leaves the keyspace: puts, deletes,
// expiry, flush and restore. In-place edits of a value fetched through Tx.Get are not reported.
// Calls happen under the shard lock, so implementations must not call back into the keyspace
type Observer interface {
	Stored(key string, v Value)
	Removed(key string, v Value)
}

type nopObserver struct{}

func (nopObserver) Stored(string, Value)  {}
func (nopObserver) Removed(string, Value) {}
