//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads buttons from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip *gpiocdev.Chip
	aPin *gpiocdev.Line
	bPin *gpiocdev.Line
}

// NewRealReader requests both pins as inputs with the internal pull-up, so an
// unpressed button reads high and a press pulls the line to ground.
func NewRealReader(pinA, pinB int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	aLine, err := chip.RequestLine(pinA, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request A pin %d: %w", pinA, err)
	}

	bLine, err := chip.RequestLine(pinB, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		aLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request B pin %d: %w", pinB, err)
	}

	return &RealReader{
		chip: chip,
		aPin: aLine,
		bPin: bLine,
	}, nil
}

// Read returns the raw levels of A and B.
func (r *RealReader) Read() (bool, bool, error) {
	aRaw, err := r.aPin.Value()
	if err != nil {
		return false, false, fmt.Errorf("read A pin: %w", err)
	}

	bRaw, err := r.bPin.Value()
	if err != nil {
		return false, false, fmt.Errorf("read B pin: %w", err)
	}

	return aRaw != 0, bRaw != 0, nil
}

// Close releases GPIO resources.
func (r *RealReader) Close() error {
	var errs []error

	if r.aPin != nil {
		if err := r.aPin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close A pin: %w", err))
		}
	}
	if r.bPin != nil {
		if err := r.bPin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close B pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
