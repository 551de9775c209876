package display

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/i2c"
)

const (
	Columns = 20
	Rows    = 4

	// DefaultAddress is the usual PCF8574 backpack address.
	DefaultAddress = 0x27
)

// PCF8574 pin mapping on the common HD44780 backpack.
const (
	pinRS        = 0x01
	pinEnable    = 0x04
	pinBacklight = 0x08
)

const (
	cmdClear       = 0x01
	cmdEntryMode   = 0x06 // increment, no shift
	cmdDisplayOn   = 0x0C // display on, cursor off, blink off
	cmdFunctionSet = 0x28 // 4-bit, 2 line, 5x8
	cmdSetDDRAM    = 0x80
)

var rowOffsets = [Rows]byte{0x00, 0x40, 0x14, 0x54}

// sleep is swapped in tests.
var sleep = time.Sleep

// LCD drives a 20x4 HD44780 character display in 4-bit mode behind a PCF8574
// expander. Callers hold the bus lock around every method.
type LCD struct {
	dev *i2c.Dev
}

func NewLCD(b i2c.Bus, addr uint16) *LCD {
	return &LCD{dev: &i2c.Dev{Bus: b, Addr: addr}}
}

// Init runs the 4-bit initialization sequence and clears the screen.
func (l *LCD) Init() error {
	sleep(50 * time.Millisecond)
	for _, nibble := range []byte{0x30, 0x30, 0x30, 0x20} {
		if err := l.pulse(nibble); err != nil {
			return errors.Wrap(err, "lcd init")
		}
		sleep(5 * time.Millisecond)
	}
	for _, cmd := range []byte{cmdFunctionSet, cmdDisplayOn, cmdEntryMode, cmdClear} {
		if err := l.command(cmd); err != nil {
			return errors.Wrap(err, "lcd init")
		}
	}
	sleep(2 * time.Millisecond)
	return nil
}

func (l *LCD) Clear() error {
	if err := l.command(cmdClear); err != nil {
		return errors.Wrap(err, "lcd clear")
	}
	sleep(2 * time.Millisecond)
	return nil
}

// WriteScreen clears the display and writes each non-empty line on its row.
func (l *LCD) WriteScreen(s Screen) error {
	if err := l.Clear(); err != nil {
		return err
	}
	for row, line := range s {
		if line == "" {
			continue
		}
		if err := l.command(cmdSetDDRAM | rowOffsets[row]); err != nil {
			return errors.Wrapf(err, "lcd cursor row %d", row)
		}
		for _, c := range []byte(fit(line)) {
			if err := l.write(c, pinRS); err != nil {
				return errors.Wrapf(err, "lcd write row %d", row)
			}
		}
	}
	return nil
}

func (l *LCD) command(b byte) error {
	return l.write(b, 0)
}

// write sends one byte as two nibbles, each latched by an enable pulse.
func (l *LCD) write(b, mode byte) error {
	hi := b&0xF0 | mode | pinBacklight
	lo := b<<4&0xF0 | mode | pinBacklight
	return l.dev.Tx([]byte{hi | pinEnable, hi, lo | pinEnable, lo}, nil)
}

func (l *LCD) pulse(nibble byte) error {
	b := nibble | pinBacklight
	return l.dev.Tx([]byte{b | pinEnable, b}, nil)
}

func fit(s string) string {
	if len(s) > Columns {
		return s[:Columns]
	}
	return s
}
