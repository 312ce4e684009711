package models

import (
	"encoding/base32"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber returns ORD-{YYYYMMDD}-{8 random chars}.
func NewOrderNumber(at time.Time) string {
	return newReference("ORD", at)
}

// NewInvoiceNumber returns INV-{YYYYMMDD}-{8 random chars}.
func NewInvoiceNumber(at time.Time) string {
	return newReference("INV", at)
}

// The suffix is the first 40 bits of a v4 UUID in base32, all of them random.
func newReference(prefix string, at time.Time) string {
	id := uuid.New()
	return prefix + "-" + at.UTC().Format("20060102") + "-" + base32.StdEncoding.EncodeToString(id[:5])
}
