//go:build linux && (arm || arm64)

package actuator

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Hardware PWM via /sys/class/pwm. On a Pi this needs dtoverlay=pwm-2chan
// so both channels are exposed; channel 0 drives the servo, channel 1 the
// drive motor's speed input.

const (
	servoPeriodNS   = 20_000_000 // 50 Hz frame
	servoMinPulseNS = 500_000    // 0°
	servoMaxPulseNS = 2_500_000  // 180°

	motorPeriodNS = 125_000 // 8 kHz
	motorMaxCount = 255
)

var pwmSysfsBase = "/sys/class/pwm"

type sysfsPWM struct {
	pwmPath  string
	periodNS uint64
	enabled  bool
}

// OpenServo exports the given sysfs PWM channel configured for hobby
// servo timing.
func OpenServo(channel int) (ServoWriter, error) {
	d, err := openChannel(channel, servoPeriodNS)
	if err != nil {
		return nil, err
	}
	return &servoPWM{pwm: d}, nil
}

// OpenMotor exports the given sysfs PWM channel for drive duty.
func OpenMotor(channel int) (PWMWriter, error) {
	d, err := openChannel(channel, motorPeriodNS)
	if err != nil {
		return nil, err
	}
	return &motorPWM{pwm: d}, nil
}

type servoPWM struct {
	pwm *sysfsPWM
}

func (s *servoPWM) WriteAngle(deg float64) error {
	if deg < 0 {
		deg = 0
	} else if deg > 180 {
		deg = 180
	}
	pulse := servoMinPulseNS + (deg/180.0)*(servoMaxPulseNS-servoMinPulseNS)
	return s.pwm.writeDutyNS(uint64(math.Round(pulse)))
}

func (s *servoPWM) Close() error { return s.pwm.close() }

type motorPWM struct {
	pwm *sysfsPWM
}

func (m *motorPWM) WriteDuty(counts float64) error {
	if counts < 0 {
		counts = 0
	} else if counts > motorMaxCount {
		counts = motorMaxCount
	}
	duty := float64(m.pwm.periodNS) * counts / motorMaxCount
	return m.pwm.writeDutyNS(uint64(math.Round(duty)))
}

func (m *motorPWM) Close() error { return m.pwm.close() }

func openChannel(channel int, periodNS uint64) (*sysfsPWM, error) {
	if channel < 0 {
		return nil, fmt.Errorf("actuator: invalid pwm channel %d", channel)
	}
	chipPath, err := findPWMChip(channel)
	if err != nil {
		return nil, err
	}
	d := &sysfsPWM{pwmPath: filepath.Join(chipPath, fmt.Sprintf("pwm%d", channel))}
	if err := d.ensureExported(chipPath, channel); err != nil {
		return nil, err
	}
	_ = d.writeBool("enable", false)
	if err := d.writeUint("period", periodNS); err != nil {
		return nil, fmt.Errorf("actuator: set pwm period: %w", err)
	}
	d.periodNS = periodNS
	if err := d.writeBool("enable", true); err != nil {
		return nil, fmt.Errorf("actuator: enable pwm: %w", err)
	}
	d.enabled = true
	return d, nil
}

func findPWMChip(channel int) (string, error) {
	entries, err := os.ReadDir(pwmSysfsBase)
	if err != nil {
		return "", fmt.Errorf("actuator: read %s: %w", pwmSysfsBase, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "pwmchip") {
			names = append(names, e.Name())
		}
	}
	sortPreferred(names)
	for _, name := range names {
		chip := filepath.Join(pwmSysfsBase, name)
		n, rerr := readInt(filepath.Join(chip, "npwm"))
		if rerr != nil || n <= channel {
			continue
		}
		return chip, nil
	}
	return "", fmt.Errorf("actuator: no sysfs pwmchip with channel %d (is the pwm overlay enabled?)", channel)
}

func sortPreferred(names []string) {
	// pwmchip0 first; the Pi header PWM usually lands there.
	for i, n := range names {
		if n == "pwmchip0" && i != 0 {
			names[0], names[i] = names[i], names[0]
			break
		}
	}
}

func (d *sysfsPWM) ensureExported(chipPath string, channel int) error {
	if _, err := os.Stat(d.pwmPath); err == nil {
		return nil
	}
	if err := writeSysfs(filepath.Join(chipPath, "export"), strconv.Itoa(channel)); err != nil {
		if _, statErr := os.Stat(d.pwmPath); statErr == nil {
			return nil
		}
		return fmt.Errorf("actuator: export pwm: %w", err)
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(d.pwmPath); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("actuator: pwm path not created after export")
}

func (d *sysfsPWM) close() error {
	_ = d.writeUint("duty_cycle", 0)
	err := d.writeBool("enable", false)
	d.enabled = false
	return err
}

func (d *sysfsPWM) writeDutyNS(ns uint64) error {
	if ns > d.periodNS {
		ns = d.periodNS
	}
	if err := d.writeUint("duty_cycle", ns); err != nil {
		return err
	}
	if !d.enabled {
		_ = d.writeBool("enable", true)
		d.enabled = true
	}
	return nil
}

func (d *sysfsPWM) writeUint(name string, v uint64) error {
	return writeSysfs(filepath.Join(d.pwmPath, name), strconv.FormatUint(v, 10))
}

func (d *sysfsPWM) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeSysfs(filepath.Join(d.pwmPath, name), val)
}

// writeSysfs opens O_WRONLY without truncation flags; some sysfs
// attributes reject O_TRUNC. Freshly exported channels can briefly return
// EACCES/ENOENT while udev settles permissions, so retry for a moment.
func writeSysfs(path, value string) error {
	deadline := time.Now().Add(2 * time.Second)
	for {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err == nil {
			_, werr := f.WriteString(value)
			cerr := f.Close()
			if werr == nil && cerr == nil {
				return nil
			}
			err = errors.Join(werr, cerr)
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return err
	}
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) ||
		errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOENT)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.Atoi(s)
}
