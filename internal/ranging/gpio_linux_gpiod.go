//go:build linux && (arm || arm64)

package ranging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// gpiodDriver drives the trigger/echo pairs through the Linux GPIO
// character device. Line names follow the Pi convention ("GPIO23" etc.).
type gpiodDriver struct {
	chip     *gpiocdev.Chip
	triggers [3]*gpiocdev.Line
	echoes   [3]*gpiocdev.Line
}

// OpenGPIO requests the trigger lines as outputs and the echo lines as
// inputs on the first chip that exposes all of them.
func OpenGPIO(pins [3]Pins) (EchoDriver, error) {
	for _, p := range pins {
		if p.Trigger <= 0 || p.Echo <= 0 {
			return nil, fmt.Errorf("ranging: invalid pin assignment %+v", p)
		}
	}

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	var lastErr error
	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		drv, err := requestLines(chip, pins)
		if err != nil {
			lastErr = err
			_ = chip.Close()
			continue
		}
		return drv, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("ranging: no usable gpiochip found")
	}
	return nil, lastErr
}

func requestLines(chip *gpiocdev.Chip, pins [3]Pins) (*gpiodDriver, error) {
	d := &gpiodDriver{chip: chip}
	for i, p := range pins {
		trig, err := requestLine(chip, p.Trigger, gpiocdev.AsOutput(0))
		if err != nil {
			_ = d.closeLines()
			return nil, err
		}
		d.triggers[i] = trig
		echo, err := requestLine(chip, p.Echo, gpiocdev.AsInput)
		if err != nil {
			_ = d.closeLines()
			return nil, err
		}
		d.echoes[i] = echo
	}
	return d, nil
}

func requestLine(chip *gpiocdev.Chip, pin int, opt gpiocdev.LineReqOption) (*gpiocdev.Line, error) {
	lineName := fmt.Sprintf("GPIO%d", pin)
	offset, err := chip.FindLine(lineName)
	if err != nil {
		return nil, fmt.Errorf("ranging: gpio line %q not found: %w", lineName, err)
	}
	line, err := chip.RequestLine(offset, opt, gpiocdev.WithConsumer("rover-ng-ranging"))
	if err != nil {
		return nil, fmt.Errorf("ranging: request %q: %w", lineName, err)
	}
	return line, nil
}

func (d *gpiodDriver) TriggerPulse(c Channel) error {
	line := d.triggers[c]
	if line == nil {
		return fmt.Errorf("ranging: trigger line %s not initialized", c)
	}
	if err := line.SetValue(0); err != nil {
		return err
	}
	time.Sleep(2 * time.Microsecond)
	if err := line.SetValue(1); err != nil {
		return err
	}
	time.Sleep(10 * time.Microsecond)
	return line.SetValue(0)
}

func (d *gpiodDriver) EchoLevel(c Channel) (bool, error) {
	line := d.echoes[c]
	if line == nil {
		return false, fmt.Errorf("ranging: echo line %s not initialized", c)
	}
	v, err := line.Value()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (d *gpiodDriver) Close() error {
	err := d.closeLines()
	if d.chip != nil {
		_ = d.chip.Close()
		d.chip = nil
	}
	return err
}

func (d *gpiodDriver) closeLines() error {
	var first error
	for i := range d.triggers {
		if d.triggers[i] != nil {
			_ = d.triggers[i].SetValue(0)
			if err := d.triggers[i].Close(); err != nil && first == nil {
				first = err
			}
			d.triggers[i] = nil
		}
		if d.echoes[i] != nil {
			if err := d.echoes[i].Close(); err != nil && first == nil {
				first = err
			}
			d.echoes[i] = nil
		}
	}
	return first
}
