package app

import "strings"

// stateDelimiter separates the new and obsoleted token ids inside the state
// parameter. Token ids are hex, so the delimiter cannot occur in them.
const stateDelimiter = ","

// State is the opaque value round-tripped through the recovery provider.
// The service keeps no session between the initiation and the callback, so
// state is the only channel guaranteed to return unmodified and must carry
// every identifier the callback needs.
type State struct {
	// TokenID is the id of the freshly provisioned token.
	TokenID string
	// ObsoletesID, when set, is the id of the confirmed token the new one
	// replaces on save-success.
	ObsoletesID string
}

// Encode renders the state as "tokenID" or "tokenID,obsoletesID".
func (s State) Encode() string {
	if s.ObsoletesID == "" {
		return s.TokenID
	}
	return s.TokenID + stateDelimiter + s.ObsoletesID
}

// ParseState splits a state value on the first delimiter, at most two parts.
func ParseState(raw string) State {
	parts := strings.SplitN(raw, stateDelimiter, 2)
	state := State{TokenID: parts[0]}
	if len(parts) > 1 {
		state.ObsoletesID = parts[1]
	}
	return state
}
