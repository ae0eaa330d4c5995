//go:build linux

// Package i2c is a minimal Linux I2C register interface backed by
// /dev/i2c-*. Transfers use I2C_RDWR so register reads are a combined
// write+read with a repeated start, which the power monitor requires.
package i2c

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	i2cMrd  = 0x0001
	i2cRdwr = 0x0707
)

type msg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type rdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// Dev is a device at a 7-bit address on an opened bus. Registers are
// 16-bit big-endian, the layout used by TI current monitors. Dev is
// not safe for concurrent transfers; coordinate at a higher level.
type Dev struct {
	f    *os.File
	path string
	addr uint16
}

func Open(path string, addr uint16) (*Dev, error) {
	if addr == 0 || addr > 0x7F {
		return nil, fmt.Errorf("invalid i2c addr 0x%X", addr)
	}
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Dev{f: f, path: path, addr: addr}, nil
}

func (d *Dev) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// ReadRegU16 reads a big-endian 16-bit register.
func (d *Dev) ReadRegU16(reg byte) (uint16, error) {
	var b [2]byte
	if err := d.tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// WriteRegU16 writes a big-endian 16-bit register.
func (d *Dev) WriteRegU16(reg byte, value uint16) error {
	var b [3]byte
	b[0] = reg
	binary.BigEndian.PutUint16(b[1:], value)
	return d.tx(b[:], nil)
}

func (d *Dev) tx(w, r []byte) error {
	if d == nil || d.f == nil {
		return errors.New("i2c device is closed")
	}

	msgs := make([]msg, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, msg{addr: d.addr, flags: 0, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, msg{addr: d.addr, flags: i2cMrd, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	if len(msgs) == 0 {
		return nil
	}

	data := rdwrData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(i2cRdwr), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return errno
	}
	return nil
}
