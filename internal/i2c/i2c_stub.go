//go:build !linux

package i2c

import "fmt"

type Dev struct{}

func Open(path string, addr uint16) (*Dev, error) {
	return nil, fmt.Errorf("i2c: unsupported OS (need linux)")
}

func (d *Dev) Close() error { return nil }

func (d *Dev) ReadRegU16(reg byte) (uint16, error) { return 0, fmt.Errorf("i2c: unsupported OS") }
func (d *Dev) WriteRegU16(reg byte, value uint16) error {
	return fmt.Errorf("i2c: unsupported OS")
}
