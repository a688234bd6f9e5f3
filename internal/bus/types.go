package bus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SourceFirstLedger is the origin tag attached to every launch fact.
const SourceFirstLedger = "firstledger.net"

// TopicNewTokens is the default event channel for launch facts.
const TopicNewTokens = "newtokens"

// LaunchFact is a token launch extracted from an announcement. It is the wire
// representation on the event channel and is never mutated after creation.
type LaunchFact struct {
	Token     string    `json:"token"`
	Issuer    string    `json:"issuer"`
	Supply    string    `json:"supply"` // as written in the announcement, may contain thousands separators
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// WatchKey identifies a pending pool watch: issuer + "." + token.
type WatchKey string

// NewWatchKey builds the dedup key for an (issuer, token) pair.
func NewWatchKey(issuer, token string) WatchKey {
	return WatchKey(issuer + "." + token)
}

// WatchKey returns the dedup key of the fact.
func (f LaunchFact) WatchKey() WatchKey {
	return NewWatchKey(f.Issuer, f.Token)
}

// Encode serializes the fact as UTF-8 JSON.
func (f LaunchFact) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode launch fact: %w", err)
	}
	return data, nil
}

// DecodeLaunchFact parses a wire payload. Token and issuer are required.
func DecodeLaunchFact(data []byte) (LaunchFact, error) {
	var f LaunchFact
	if err := json.Unmarshal(data, &f); err != nil {
		return LaunchFact{}, fmt.Errorf("decode launch fact: %w", err)
	}
	f.Token = strings.TrimSpace(f.Token)
	f.Issuer = strings.TrimSpace(f.Issuer)
	if f.Token == "" || f.Issuer == "" {
		return LaunchFact{}, fmt.Errorf("decode launch fact: token and issuer are required")
	}
	return f, nil
}
