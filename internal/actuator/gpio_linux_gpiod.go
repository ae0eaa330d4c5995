//go:build linux && (arm || arm64)

package actuator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// OpenBuzzer requests the given BCM GPIO as a digital output through the
// Linux GPIO character device.
func OpenBuzzer(pin int) (Buzzer, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("actuator: invalid buzzer pin %d", pin)
	}
	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", e.Name()))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("rover-ng-buzzer"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodBuzzer{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("actuator: gpio line %q not found (or busy)", lineName)
}

type gpiodBuzzer struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (b *gpiodBuzzer) Set(on bool) error {
	if b == nil || b.line == nil {
		return fmt.Errorf("actuator: buzzer not initialized")
	}
	v := 0
	if on {
		v = 1
	}
	return b.line.SetValue(v)
}

func (b *gpiodBuzzer) Close() error {
	if b == nil || b.line == nil {
		return nil
	}
	_ = b.line.SetValue(0)
	err := b.line.Close()
	b.line = nil
	if b.chip != nil {
		_ = b.chip.Close()
		b.chip = nil
	}
	return err
}
