package redisx

import (
	"fmt"
	"time"
)

const (
	// Cart per user: cart:{user_id} -> JSON cart
	KeyCart = "cart:%s"

	// Stock mirror per product: product:{product_id} -> {"count": n}
	KeyStock = "product:%s"

	// Product lock: lock:product:{product_id} -> LOCKED (TTL)
	KeyLock = "lock:product:%s"

	// Dedup event processing: dedup:{service}:{id}
	KeyDedup = "dedup:%s:%s"

	LockValue = "LOCKED"
)

var (
	TTLLock  = 5 * time.Second
	TTLDedup = 48 * time.Hour
)

func CartKey(userID string) string     { return fmt.Sprintf(KeyCart, userID) }
func StockKey(productID string) string { return fmt.Sprintf(KeyStock, productID) }
func LockKey(productID string) string  { return fmt.Sprintf(KeyLock, productID) }
