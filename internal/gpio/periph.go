//go:build linux

package gpio

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphReader reads buttons through periph.io. Useful on boards where the
// character device is unavailable but /dev/gpiomem is.
type PeriphReader struct {
	aPin periphPin
	bPin periphPin
}

// periphPin is the part of gpio.PinIO the reader uses.
type periphPin interface {
	Read() gpio.Level
	Halt() error
}

// NewPeriphReader initialises the periph host and configures both pins as
// inputs with pull-up and no edge detection.
func NewPeriphReader(pinA, pinB int) (*PeriphReader, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	return openPeriphPins(pinA, pinB, periphInput)
}

// openPeriphPins configures A then B. If B fails, A is halted again.
func openPeriphPins(pinA, pinB int, open func(int) (periphPin, error)) (*PeriphReader, error) {
	a, err := open(pinA)
	if err != nil {
		return nil, fmt.Errorf("A pin: %w", err)
	}
	b, err := open(pinB)
	if err != nil {
		if herr := a.Halt(); herr != nil {
			return nil, fmt.Errorf("B pin: %w (halt A pin: %v)", err, herr)
		}
		return nil, fmt.Errorf("B pin: %w", err)
	}

	return &PeriphReader{aPin: a, bPin: b}, nil
}

func periphInput(pin int) (periphPin, error) {
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		return nil, fmt.Errorf("no such pin GPIO%d", pin)
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure GPIO%d: %w", pin, err)
	}
	return p, nil
}

// Read returns the raw levels of A and B.
func (r *PeriphReader) Read() (bool, bool, error) {
	return r.aPin.Read() == gpio.High, r.bPin.Read() == gpio.High, nil
}

// Close halts both pins.
func (r *PeriphReader) Close() error {
	var errs []error
	if err := r.aPin.Halt(); err != nil {
		errs = append(errs, fmt.Errorf("halt A pin: %w", err))
	}
	if err := r.bPin.Halt(); err != nil {
		errs = append(errs, fmt.Errorf("halt B pin: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
