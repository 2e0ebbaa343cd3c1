package trace

import "time"

// Direction says which way a chunk was moving when it was captured.
type Direction string

const (
	// ClientToTarget is a chunk read from the client and forwarded to a target.
	ClientToTarget Direction = "client->target"
	// TargetToClient is a chunk read from a target, possibly echoed to the client.
	TargetToClient Direction = "target->client"
)

// Entry is one captured chunk transfer. It is immutable once created.
//
// SourceIndex and TargetIndex identify the socket within the session: the
// client is always index 0, targets carry the index of their position in the
// configured target list. Chunk holds the bytes after any transform ran, or
// the original bytes when the transform dropped the chunk (ChunkSent=false).
type Entry struct {
	Direction    Direction `json:"direction"`
	SessionID    string    `json:"sessionId"`
	SessionStart time.Time `json:"sessionStart"`
	SourceAddr   string    `json:"sourceAddr"`
	SourceIndex  int       `json:"sourceIndex"`
	TargetAddr   string    `json:"targetAddr"`
	TargetIndex  int       `json:"targetIndex"`
	Chunk        []byte    `json:"chunk"`
	ChunkSent    bool      `json:"chunkSent"`
	Error        string    `json:"error,omitempty"`
	Time         time.Time `json:"time"`
}
