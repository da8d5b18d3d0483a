package genesis

import "github.com/casperlabs/dagcore/dagtypes"

// Collaborators is the capability set the ceremony needs from the rest
// of the node: block storage, a clock, broadcast, and metrics (spec
// §6, §9). Per §9's design note these are injected as a record of
// plain functions rather than an interface hierarchy, since the
// ceremony never needs more than one implementation of each at a time.
type Collaborators struct {
	// BlockStorePut persists an approved block's payload once the
	// ceremony concludes. Optional: a nil func skips persistence.
	BlockStorePut func(hash dagtypes.Hash, payload []byte) error
	// BlockStoreGet retrieves a previously stored block's payload.
	BlockStoreGet func(hash dagtypes.Hash) ([]byte, bool)
	// ClockNowMillis returns the current wall-clock time in
	// milliseconds; required.
	ClockNowMillis func() int64
	// BroadcastToPeers fire-and-forgets a tagged payload to connected
	// peers; a nil func makes broadcasting a no-op.
	BroadcastToPeers func(tag string, payload []byte)
	// IncrementCounter bumps a best-effort metrics counter; a nil func
	// makes metrics a no-op.
	IncrementCounter func(name string)
}

func (c Collaborators) broadcast(tag string, payload []byte) {
	if c.BroadcastToPeers != nil {
		c.BroadcastToPeers(tag, payload)
	}
}

func (c Collaborators) incrementCounter(name string) {
	if c.IncrementCounter != nil {
		c.IncrementCounter(name)
	}
}
