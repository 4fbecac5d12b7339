package cache

import "strings"

// KeyFXRates returns the key holding the exchange-rate table for base.
func KeyFXRates(base string) string {
	return "fx:rates:" + strings.ToUpper(strings.TrimSpace(base))
}

// KeyCatalogSyncLock returns the lock key guarding catalog refresh runs.
func KeyCatalogSyncLock(supplier string) string {
	return "lock:catalog-sync:" + strings.ToLower(strings.TrimSpace(supplier))
}
