package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"magnetswipe"
)

// mockSerialPort replays chunks, then fails with io.EOF.
type mockSerialPort struct {
	chunks      [][]byte
	readTimeout time.Duration
	closed      bool
}

func (m *mockSerialPort) Read(p []byte) (int, error) {
	if len(m.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, m.chunks[0])
	m.chunks[0] = m.chunks[0][n:]
	if len(m.chunks[0]) == 0 {
		m.chunks = m.chunks[1:]
	}
	return n, nil
}

func (m *mockSerialPort) SetMode(mode *serial.Mode) error                      { return nil }
func (m *mockSerialPort) Write(p []byte) (n int, err error)                    { return len(p), nil }
func (m *mockSerialPort) Drain() error                                         { return nil }
func (m *mockSerialPort) ResetInputBuffer() error                              { return nil }
func (m *mockSerialPort) ResetOutputBuffer() error                             { return nil }
func (m *mockSerialPort) SetDTR(dtr bool) error                                { return nil }
func (m *mockSerialPort) SetRTS(rts bool) error                                { return nil }
func (m *mockSerialPort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }
func (m *mockSerialPort) SetReadTimeout(t time.Duration) error                 { m.readTimeout = t; return nil }
func (m *mockSerialPort) Close() error                                         { m.closed = true; return nil }
func (m *mockSerialPort) Break(time.Duration) error                            { return nil }

func TestParseSerialLine(t *testing.T) {
	tests := []struct {
		line    string
		want    serialLine
		wantErr bool
		skip    bool
	}{
		{line: "1.5,-2,30", want: serialLine{Vector: magnetswipe.Vector3{X: 1.5, Y: -2, Z: 30}}},
		{line: "  12 34\t56 ", want: serialLine{Vector: magnetswipe.Vector3{X: 12, Y: 34, Z: 56}}},
		{line: "1;2;3\r", want: serialLine{Vector: magnetswipe.Vector3{X: 1, Y: 2, Z: 3}}},
		{line: "A 2", want: serialLine{Accuracy: magnetswipe.AccuracyMedium, HasAccuracy: true}},
		{line: "a,-1", want: serialLine{Accuracy: magnetswipe.AccuracyNoContact, HasAccuracy: true}},
		{line: "A 9", wantErr: true},
		{line: "# HMC5883L ready", skip: true},
		{line: "", skip: true},
		{line: "1,2", wantErr: true},
		{line: "x,y,z", wantErr: true},
		{line: "nan,1,2", wantErr: true},
		{line: "inf,0,0", wantErr: true},
		{line: "0,-Inf,0", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseSerialLine(tt.line)
		switch {
		case tt.skip:
			assert.ErrorIs(t, err, errSkipLine, tt.line)
		case tt.wantErr:
			assert.Error(t, err, tt.line)
			assert.False(t, errors.Is(err, errSkipLine), tt.line)
		default:
			require.NoError(t, err, tt.line)
			assert.Equal(t, tt.want, got, tt.line)
		}
	}
}

func TestLineSplitter(t *testing.T) {
	var lines []string
	s := lineSplitter{max: 16}
	collect := func(l string) { lines = append(lines, l) }

	s.write([]byte("1,2,"), collect)
	assert.Empty(t, lines)
	s.write([]byte("3\r\n4,5,6\n7"), collect)
	assert.Equal(t, []string{"1,2,3", "4,5,6"}, lines)

	// Overlong garbage without a newline is dropped.
	s.write([]byte("xxxxxxxxxxxxxxxxxxxxxxxx"), collect)
	s.write([]byte("8,9,10\n"), collect)
	assert.Equal(t, []string{"1,2,3", "4,5,6", "8,9,10"}, lines)
}

func TestPortOptions(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, opts)

	mode, err := PortOptions{BaudRate: 9600, StopBits: 2, Parity: "odd"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)

	_, err = PortOptions{DataBits: 9}.Normalize()
	assert.Error(t, err)
	_, err = PortOptions{StopBits: 3}.Normalize()
	assert.Error(t, err)
	_, err = PortOptions{Parity: "space"}.SerialMode()
	assert.Error(t, err)
}

func TestSerialBackend_Run(t *testing.T) {
	port := &mockSerialPort{chunks: [][]byte{
		[]byte("# boot\nA 3\n10,20"),
		[]byte(",30\ngarbage\n"),
		[]byte("0,0,5\n"),
	}}
	var openedPath string
	var openedMode *serial.Mode

	b := newSerialBackend("/dev/ttyTEST", PortOptions{BaudRate: 57600}, 2, discardLogger())
	b.open = func(path string, mode *serial.Mode) (serial.Port, error) {
		openedPath, openedMode = path, mode
		return port, nil
	}
	b.now = func() time.Time { return time.Unix(0, 42) }

	rec := &recordingReadings{}
	err := b.Run(context.Background(), 0, rec)
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, "/dev/ttyTEST", openedPath)
	assert.Equal(t, 57600, openedMode.BaudRate)
	assert.Equal(t, serialReadTimeout, port.readTimeout)
	assert.True(t, port.closed)

	samples, acc := rec.snapshot()
	assert.Equal(t, []magnetswipe.Vector3{{X: 20, Y: 40, Z: 60}, {X: 0, Y: 0, Z: 10}}, samples)
	assert.Equal(t, []magnetswipe.Accuracy{magnetswipe.AccuracyHigh}, acc)
}

func TestSerialBackend_OpenFailure(t *testing.T) {
	b := newSerialBackend("/dev/ttyNONE", PortOptions{}, 1, discardLogger())
	b.open = func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("no such device")
	}
	err := b.Run(context.Background(), 0, &recordingReadings{})
	assert.ErrorContains(t, err, "/dev/ttyNONE")
}

func TestSerialBackend_StopsOnCancel(t *testing.T) {
	port := &mockSerialPort{chunks: [][]byte{[]byte("1,2,3\n")}}
	b := newSerialBackend("/dev/ttyTEST", PortOptions{}, 1, discardLogger())
	b.open = func(string, *serial.Mode) (serial.Port, error) { return port, nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, b.Run(ctx, 0, &recordingReadings{}))
}
