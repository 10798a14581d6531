package cache

import (
	"strings"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
)

// Config is the cache database configuration.
type Config struct {
	UseTraderPrefix  bool                       `json:"use_trader_prefix"`
	UseInstanceID    bool                       `json:"use_instance_id"`
	BufferIntervalMs uint64                     `json:"buffer_interval_ms"`
	Encoding         enum.SerializationEncoding `json:"-"`
}

// DefaultConfig mirrors the defaults used by the live node.
func DefaultConfig() Config {
	return Config{
		UseTraderPrefix: true,
		Encoding:        enum.SerializationEncodingMsgPack,
	}
}

// BufferInterval is zero when writes go straight to the backend.
func (c Config) BufferInterval() time.Duration {
	return time.Duration(c.BufferIntervalMs) * time.Millisecond
}

// Keyspace returns `[trader-]<trader_id>[:<instance_id>]`.
func (c Config) Keyspace(traderID model.TraderID, instanceID model.UUID4) string {
	var sb strings.Builder
	if c.UseTraderPrefix {
		sb.WriteString("trader-")
	}
	sb.WriteString(traderID.String())
	if c.UseInstanceID {
		sb.WriteByte(':')
		sb.WriteString(instanceID.String())
	}
	return sb.String()
}

// Collections stored under a keyspace.
const (
	CollectionGeneral     = "general"
	CollectionInstruments = "instruments"
	CollectionOrders      = "orders"
	CollectionPositions   = "positions"
)

const keyDelimiter = ":"

// Key joins keyspace, collection and id.
func Key(keyspace, collection, id string) string {
	return keyspace + keyDelimiter + collection + keyDelimiter + id
}

// CollectionPrefix is the prefix every key of collection shares.
func CollectionPrefix(keyspace, collection string) string {
	return keyspace + keyDelimiter + collection + keyDelimiter
}
