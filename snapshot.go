package spotcore

const (
	// EngineVersion is the current version of the matching engine
	EngineVersion = "v1.0.0"

	// SnapshotSchemaVersion is the current version of the snapshot schema
	// Increment this when the snapshot format changes in a backward-incompatible way
	SnapshotSchemaVersion = 1
)

// OrderBookSnapshot contains the full state of a single order book: both
// sides in priority order plus the counters needed to resume trade ID and
// sequence assignment without duplication.
type OrderBookSnapshot struct {
	Market      string  `json:"market"`
	BaseAsset   string  `json:"base_asset"`
	QuoteAsset  string  `json:"quote_asset"`
	LastTradeID uint64  `json:"last_trade_id"`
	NextSeq     uint64  `json:"next_seq"`
	Bids        []Order `json:"bids"` // best price first
	Asks        []Order `json:"asks"` // best price first
}

// UserBalances is one user's per-asset custody record inside a snapshot.
type UserBalances struct {
	UserID string             `json:"user_id"`
	Assets map[string]Balance `json:"assets"`
}

// EngineSnapshot is the full, point-in-time serialization of engine state:
// every order book and the complete ledger. Each snapshot supersedes the
// previous one; snapshots are never merged.
type EngineSnapshot struct {
	Orderbooks []*OrderBookSnapshot `json:"orderbooks"`
	Balances   []UserBalances       `json:"balances"`
}

// SnapshotMetadata holds the global metadata for a snapshot (stored in
// metadata.json alongside the payload).
type SnapshotMetadata struct {
	SchemaVersion int    `json:"schema_version"`
	Timestamp     int64  `json:"timestamp"` // Unix nano
	EngineVersion string `json:"engine_version"`
	Checksum      uint32 `json:"checksum"` // CRC32 of snapshot.json
}
