package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"magnetswipe"
)

// PortOptions describes the serial connection used by a serial magnetometer.
type PortOptions struct {
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return opts, nil
}

// SerialMode converts the options into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	} else {
		mode.StopBits = serial.OneStopBit
	}

	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// ============================================================================
// Line protocol
// ============================================================================
// A serial magnetometer writes one reading per line:
//
//   <x>,<y>,<z>          field sample (commas or whitespace)
//   A <n>                accuracy report, n in -1..3
//   # anything           comment / banner, ignored
//
// ============================================================================

var errSkipLine = errors.New("skip line")

type serialLine struct {
	Vector      magnetswipe.Vector3
	Accuracy    magnetswipe.Accuracy
	HasAccuracy bool
}

func parseSerialLine(line string) (serialLine, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return serialLine{}, errSkipLine
	}

	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})

	if len(fields) == 2 && strings.EqualFold(fields[0], "A") {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < int(magnetswipe.AccuracyNoContact) || n > int(magnetswipe.AccuracyHigh) {
			return serialLine{}, fmt.Errorf("invalid accuracy %q", fields[1])
		}
		return serialLine{Accuracy: magnetswipe.Accuracy(n), HasAccuracy: true}, nil
	}

	if len(fields) != 3 {
		return serialLine{}, fmt.Errorf("expected 3 components, got %d in %q", len(fields), line)
	}
	var vals [3]float32
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return serialLine{}, fmt.Errorf("component %d: %w", i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return serialLine{}, fmt.Errorf("component %d: non-finite value %q", i, f)
		}
		vals[i] = float32(v)
	}
	return serialLine{Vector: magnetswipe.Vector3{X: vals[0], Y: vals[1], Z: vals[2]}}, nil
}

// lineSplitter accumulates bytes and yields complete lines.
type lineSplitter struct {
	buf []byte
	max int
}

func (s *lineSplitter) write(p []byte, fn func(line string)) {
	s.buf = append(s.buf, p...)
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		fn(string(bytes.TrimRight(s.buf[:i], "\r")))
		s.buf = s.buf[i+1:]
	}
	if s.max > 0 && len(s.buf) > s.max {
		// A device spewing garbage without newlines; start over.
		s.buf = s.buf[:0]
	}
}

// ============================================================================
// Backend
// ============================================================================

// serialOpener opens a port; replaced in tests.
type serialOpener func(path string, mode *serial.Mode) (serial.Port, error)

type serialBackend struct {
	path   string
	opts   PortOptions
	scale  float32
	open   serialOpener
	now    func() time.Time
	logger *slog.Logger
}

const serialReadTimeout = 250 * time.Millisecond

func newSerialBackend(path string, opts PortOptions, scale float32, logger *slog.Logger) *serialBackend {
	if scale == 0 {
		scale = 1
	}
	return &serialBackend{
		path:   path,
		opts:   opts,
		scale:  scale,
		open:   serial.Open,
		now:    time.Now,
		logger: logger,
	}
}

// Run reads lines until ctx is canceled or the port fails. Samples are
// timestamped on arrival.
func (b *serialBackend) Run(ctx context.Context, _ time.Duration, sink readingSink) error {
	mode, err := b.opts.SerialMode()
	if err != nil {
		return err
	}
	port, err := b.open(b.path, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", b.path, err)
	}
	defer port.Close()

	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}

	return b.readLoop(ctx, port, sink)
}

func (b *serialBackend) readLoop(ctx context.Context, port serial.Port, sink readingSink) error {
	split := lineSplitter{max: 4096}
	chunk := make([]byte, 256)

	handle := func(line string) {
		sl, err := parseSerialLine(line)
		switch {
		case errors.Is(err, errSkipLine):
			return
		case err != nil:
			b.logger.Debug("ignoring malformed serial line", "port", b.path, "error", err)
			return
		case sl.HasAccuracy:
			sink.Accuracy(sl.Accuracy)
		default:
			v := sl.Vector
			v.X *= b.scale
			v.Y *= b.scale
			v.Z *= b.scale
			sink.Sample(v, b.now().UnixNano())
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := port.Read(chunk)
		if err != nil {
			return fmt.Errorf("read serial port %s: %w", b.path, err)
		}
		if n == 0 {
			// read timeout
			continue
		}
		split.write(chunk[:n], handle)
	}
}
