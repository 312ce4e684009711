package models

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderNumbersAreUnique(t *testing.T) {
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	format := regexp.MustCompile(`^ORD-20260601-[A-Z2-7]{8}$`)

	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		n := NewOrderNumber(at)
		assert.Regexp(t, format, n)
		assert.False(t, seen[n], "duplicate order number %s", n)
		seen[n] = true
	}
}

func TestInvoiceNumbersAreUnique(t *testing.T) {
	at := time.Date(2026, 6, 1, 23, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	format := regexp.MustCompile(`^INV-20260601-[A-Z2-7]{8}$`)

	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		n := NewInvoiceNumber(at)
		assert.Regexp(t, format, n)
		assert.False(t, seen[n], "duplicate invoice number %s", n)
		seen[n] = true
	}
}
