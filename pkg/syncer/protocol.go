package syncer

import (
	"encoding/json"

	"github.com/google/uuid"

	"weftlabs/weft/pkg/command"
)

// frameType discriminates protocol frames on the wire.
type frameType string

const (
	// typeHeads advertises the sender's head frontier and opens or
	// continues a session.
	typeHeads frameType = "heads"

	// typeRequest asks the peer for specific commands by identifier.
	typeRequest frameType = "request"

	// typeEnvelopes carries sealed envelopes answering a request.
	typeEnvelopes frameType = "envelopes"
)

// frame is the single wire message shape. Fields are populated per type:
// heads for typeHeads, want for typeRequest, envelopes for typeEnvelopes.
// Envelope bytes travel verbatim as sealed on the originating device, so
// signatures and identifiers verify unchanged on arrival.
type frame struct {
	Type      frameType         `json:"type"`
	Session   uuid.UUID         `json:"session"`
	Heads     []command.ID      `json:"heads,omitempty"`
	Want      []command.ID      `json:"want,omitempty"`
	Envelopes []json.RawMessage `json:"envelopes,omitempty"`
}

func encodeFrame(f *frame) ([]byte, error) {
	return json.Marshal(f)
}

func decodeFrame(data []byte) (*frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
