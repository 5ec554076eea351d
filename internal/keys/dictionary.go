package keys

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Size is the length of a MIFARE Classic sector key.
const Size = 6

// MaxKeys caps how many keys one dictionary holds.
const MaxKeys = 50

// Key is an opaque 6-byte authentication key.
type Key [Size]byte

// String renders the key as uppercase hex without separators.
func (k Key) String() string {
	return strings.ToUpper(hex.EncodeToString(k[:]))
}

// ParseKey accepts a 12-digit hex string, with or without spaces.
func ParseKey(s string) (Key, error) {
	clean := strings.Join(strings.Fields(s), "")
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Key{}, fmt.Errorf("parse key %q: %w", s, err)
	}
	if len(raw) != Size {
		return Key{}, fmt.Errorf("parse key %q: want %d bytes, got %d", s, Size, len(raw))
	}
	var k Key
	copy(k[:], raw)
	return k, nil
}

func mustKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Defaults are tried when no usable key file exists. Transport key first,
// then well-known manufacturer and NFC Forum keys.
var Defaults = []Key{
	mustKey("FFFFFFFFFFFF"),
	mustKey("A0A1A2A3A4A5"),
	mustKey("D3F7D3F7D3F7"),
	mustKey("000000000000"),
	mustKey("B0B1B2B3B4B5"),
	mustKey("AABBCCDDEEFF"),
	mustKey("4D3A99C351DD"),
	mustKey("1A982C7E459A"),
}

// Dictionary is an ordered, capacity-bounded key list. Insertion order is
// trial order.
type Dictionary struct {
	keys     []Key
	capacity int
	dropped  int
}

func NewDictionary(capacity int) *Dictionary {
	if capacity <= 0 || capacity > MaxKeys {
		capacity = MaxKeys
	}
	return &Dictionary{
		keys:     make([]Key, 0, capacity),
		capacity: capacity,
	}
}

// DefaultDictionary returns a dictionary seeded with Defaults.
func DefaultDictionary(capacity int) *Dictionary {
	d := NewDictionary(capacity)
	for _, k := range Defaults {
		d.Add(k)
	}
	return d
}

// Add appends a key. It returns false and counts the key as dropped when
// the dictionary is full.
func (d *Dictionary) Add(k Key) bool {
	if len(d.keys) >= d.capacity {
		d.dropped++
		return false
	}
	d.keys = append(d.keys, k)
	return true
}

func (d *Dictionary) Len() int {
	return len(d.keys)
}

func (d *Dictionary) Cap() int {
	return d.capacity
}

// Dropped is the number of keys rejected because the dictionary was full.
func (d *Dictionary) Dropped() int {
	return d.dropped
}

func (d *Dictionary) At(i int) Key {
	return d.keys[i]
}

// Keys returns a copy of the keys in trial order.
func (d *Dictionary) Keys() []Key {
	out := make([]Key, len(d.keys))
	copy(out, d.keys)
	return out
}
