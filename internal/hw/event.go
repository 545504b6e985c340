package hw

import "fmt"

// Kind identifies the source of a raw event.
type Kind uint8

const (
	// KindPin is a pin level change on a watched pin.
	KindPin Kind = iota + 1
	// KindSerial carries up to 8 received bytes from a serial device.
	KindSerial
)

func (k Kind) String() string {
	switch k {
	case KindPin:
		return "pin"
	case KindSerial:
		return "serial"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Flags are per-event bits set by the producer.
type Flags uint8

// FlagHigh marks a pin event whose level was high at capture.
const FlagHigh Flags = 1 << 0

// MaxChars is the payload capacity of one serial event.
const MaxChars = 8

// Event is one raw hardware notification. Time is the low bits of the
// tick counter at capture; the consumer reconstructs the full value.
type Event struct {
	Kind   Kind
	Device int // pin number for KindPin, device number for KindSerial
	Flags  Flags
	Time   uint32
	Chars  [MaxChars]byte
	N      uint8
}

// High reports whether a pin event captured a high level.
func (e Event) High() bool {
	return e.Flags&FlagHigh != 0
}

// Data returns the received bytes of a serial event.
func (e Event) Data() []byte {
	return e.Chars[:e.N]
}

// Truncate keeps the low bits of a full tick value.
func Truncate(t int64, bits uint) uint32 {
	if bits >= 32 {
		return uint32(t)
	}
	return uint32(t) & (1<<bits - 1)
}
