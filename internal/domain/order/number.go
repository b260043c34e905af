package order

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultNumberPrefix is used when no prefix is configured.
const DefaultNumberPrefix = "ORD"

// NumberGenerator produces order numbers of the form
// PREFIX-yyyymmddHHMMSS-XXXXXXXXXXXX where the suffix is 48 random bits.
// The unique index on orders.number is the final guard.
type NumberGenerator struct {
	Prefix string
	Now    func() time.Time
}

// Next returns a fresh order number.
func (g NumberGenerator) Next() string {
	prefix := g.Prefix
	if prefix == "" {
		prefix = DefaultNumberPrefix
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	id := uuid.New()
	suffix := strings.ToUpper(hex.EncodeToString(id[:6]))

	var b strings.Builder
	b.Grow(len(prefix) + 1 + 14 + 1 + len(suffix))
	b.WriteString(prefix)
	b.WriteByte('-')
	b.WriteString(now().UTC().Format("20060102150405"))
	b.WriteByte('-')
	b.WriteString(suffix)
	return b.String()
}
