package mifare

import "fmt"

// Family is a coarse card type guess.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyClassic
	FamilyUltralight
)

func (f Family) String() string {
	switch f {
	case FamilyClassic:
		return "MIFARE Classic"
	case FamilyUltralight:
		return "MIFARE Ultralight/NTAG"
	default:
		return "Unknown card"
	}
}

// Classification is the result of Classify.
type Classification struct {
	Family Family
	UIDLen int
	// Hint is derived from SAK when the backend reported one.
	Hint string
}

// Classify guesses the card family from the UID length alone. Four byte
// UIDs are treated as Classic and seven byte UIDs as Ultralight/NTAG.
func Classify(id CardID) Classification {
	c := Classification{UIDLen: id.Len()}
	switch id.Len() {
	case 4:
		c.Family = FamilyClassic
	case 7:
		c.Family = FamilyUltralight
	default:
		c.Family = FamilyUnknown
	}
	if id.HasSAK {
		c.Hint = sakHint(id.SAK)
	}
	return c
}

func sakHint(sak byte) string {
	switch sak {
	case 0x08:
		return "SAK 08: Classic 1K"
	case 0x18:
		return "SAK 18: Classic 4K"
	case 0x09:
		return "SAK 09: Classic Mini"
	case 0x00:
		return "SAK 00: Ultralight/NTAG"
	case 0x20:
		return "SAK 20: ISO 14443-4"
	default:
		return fmt.Sprintf("SAK %02X", sak)
	}
}
