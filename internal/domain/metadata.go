package domain

import (
	"errors"
	"fmt"
	"sort"
)

// MetadataKey enumerates the bounded set of keys an order may carry.
// Free-form maps drift; new keys must be added here and documented.
type MetadataKey string

const (
	// MetadataKeyCampaign records the marketing campaign that drove the order.
	MetadataKeyCampaign MetadataKey = "campaign"
	// MetadataKeyReferrer records the referring site or app screen.
	MetadataKeyReferrer MetadataKey = "referrer"
	// MetadataKeyWarehouse records the fulfilment warehouse assignment.
	MetadataKeyWarehouse MetadataKey = "warehouse"
	// MetadataKeyClientIP records the client address captured at checkout.
	MetadataKeyClientIP MetadataKey = "client_ip"
	// MetadataKeyUserAgent records the client user agent captured at checkout.
	MetadataKeyUserAgent MetadataKey = "user_agent"
	// MetadataKeyReservationID records the inventory reservation backing the order.
	MetadataKeyReservationID MetadataKey = "reservation_id"
)

var allowedMetadataKeys = map[MetadataKey]struct{}{
	MetadataKeyCampaign:      {},
	MetadataKeyReferrer:      {},
	MetadataKeyWarehouse:     {},
	MetadataKeyClientIP:      {},
	MetadataKeyUserAgent:     {},
	MetadataKeyReservationID: {},
}

// ErrMetadataKeyUnknown indicates a key outside the documented set.
var ErrMetadataKeyUnknown = errors.New("metadata: unknown key")

// Metadata is a typed key/value attachment with a bounded key set.
type Metadata map[MetadataKey]string

// Validate rejects metadata containing keys outside the allowed set.
func (m Metadata) Validate() error {
	for key := range m {
		if _, ok := allowedMetadataKeys[key]; !ok {
			return fmt.Errorf("%w: %s", ErrMetadataKeyUnknown, key)
		}
	}
	return nil
}

// Clone returns a copy so callers cannot mutate shared state.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Keys returns the metadata keys in deterministic order.
func (m Metadata) Keys() []MetadataKey {
	keys := make([]MetadataKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
