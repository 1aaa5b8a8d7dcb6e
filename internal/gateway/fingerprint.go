package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// requestFingerprint hashes the canonical form of an order request
// together with a coarse time bucket. Identical requests inside one
// bucket share a fingerprint and therefore a client order id; the same
// trade repeated in a later bucket is a new order. Marshaling a map
// keeps the key order canonical.
func requestFingerprint(req OrderRequest, now time.Time, window time.Duration) string {
	if window <= 0 {
		window = 30 * time.Second
	}
	windowSec := int64(window / time.Second)
	bucket := now.Unix() / windowSec * windowSec

	var price any
	if req.Price != nil {
		price = req.Price.String()
	}
	canonical, _ := json.Marshal(map[string]any{
		"symbol":           req.Symbol,
		"side":             req.Side,
		"size":             req.Size.String(),
		"type":             req.Type,
		"price":            price,
		"timestamp_window": bucket,
	})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// newClientOrderID returns an exchange-compatible client order id:
// 128 random bits as 0x-prefixed hex.
func newClientOrderID() string {
	id := uuid.New()
	return "0x" + hex.EncodeToString(id[:])
}
