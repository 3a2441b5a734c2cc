package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/route"
)

// MaxTextLength is the maximum allowed query text length.
const MaxTextLength = 4096

// Query is a validated, immutable incoming query.
type Query struct {
	text          string
	manufacturer  string
	equipmentType string
	image         []byte
	synthesize    bool
}

// New validates and normalizes an incoming query.
func New(text, manufacturer, equipmentType string, image []byte, synthesize bool) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, fmt.Errorf("%w: query text is required", domain.ErrInputInvalid)
	}
	if len(text) > MaxTextLength {
		return Query{}, fmt.Errorf("%w: query text too long (max %d chars)", domain.ErrInputInvalid, MaxTextLength)
	}

	return Query{
		text:          text,
		manufacturer:  strings.TrimSpace(manufacturer),
		equipmentType: strings.TrimSpace(equipmentType),
		image:         image,
		synthesize:    synthesize,
	}, nil
}

// Text returns the query text.
func (q *Query) Text() string { return q.text }

// Manufacturer returns the manufacturer filter ("" when unset).
func (q *Query) Manufacturer() string { return q.manufacturer }

// EquipmentType returns the equipment-type filter ("" when unset).
func (q *Query) EquipmentType() string { return q.equipmentType }

// Image returns the attached image payload (nil when absent).
func (q *Query) Image() []byte { return q.image }

// Synthesize reports whether a generated answer was requested.
func (q *Query) Synthesize() bool { return q.synthesize }

// Fingerprint derives the deterministic cache key for this query under the
// given handling mode. Semantically identical queries (same normalized text,
// same filters, same mode) always fingerprint identically; field order
// cannot influence the result because each field is written under a fixed
// label in a fixed sequence.
func (q *Query) Fingerprint(m route.Mode) string {
	h := sha256.New()
	fmt.Fprintf(h, "text=%s\n", strings.ToLower(q.text))
	fmt.Fprintf(h, "manufacturer=%s\n", strings.ToLower(q.manufacturer))
	fmt.Fprintf(h, "equipment=%s\n", strings.ToLower(q.equipmentType))
	fmt.Fprintf(h, "synthesize=%t\n", q.synthesize)
	fmt.Fprintf(h, "mode=%s\n", m)
	if len(q.image) > 0 {
		img := sha256.Sum256(q.image)
		fmt.Fprintf(h, "image=%s\n", hex.EncodeToString(img[:]))
	}
	return hex.EncodeToString(h.Sum(nil))
}
