// Package gpio provides button input reading with hardware abstraction.
// The real implementations use the Linux GPIO character device (go-gpiocdev)
// or periph.io. The fake implementation allows testing without hardware.
package gpio

import "fmt"

// Reader reads the raw electrical levels of the two button inputs.
type Reader interface {
	// Read returns the instantaneous levels of A and B (true = high).
	// Buttons are active-low; inversion is left to the sampler.
	Read() (aHigh bool, bHigh bool, err error)

	// Close releases GPIO resources.
	Close() error
}

// Default pin definitions (BCM numbering).
const (
	DefaultPinA = 5 // Button A
	DefaultPinB = 6 // Button B
)

// Driver names accepted by Open.
const (
	DriverGPIOCDev = "gpiocdev"
	DriverPeriph   = "periph"
)

// Open creates a Reader for the named driver with both pins configured as
// inputs with the internal pull-up enabled.
func Open(driver string, pinA, pinB int) (Reader, error) {
	switch driver {
	case DriverGPIOCDev, "":
		r, err := NewRealReader(pinA, pinB)
		if err != nil {
			return nil, err
		}
		return r, nil
	case DriverPeriph:
		r, err := NewPeriphReader(pinA, pinB)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown gpio driver %q", driver)
	}
}
