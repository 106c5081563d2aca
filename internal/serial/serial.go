// Package serial reads newline delimited records from a Linux serial device.
//
// The port is put in raw 8N1 mode with flow control disabled, and any bytes
// left in the kernel buffers by a previous session are discarded on Open.
// NextLine never fails on a read timeout: it returns whatever partial data
// arrived instead, so a slow or silent device looks like a short line to the
// caller.
//
// This package does not support Windows.
package serial

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	DefaultDevice      = "/dev/ttyACM0"
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 10 * time.Second
	DefaultDelimiter   = "\n"
)

var (
	// ErrClosed is returned by NextLine once Close has been called.
	ErrClosed = errors.New("serial port closed")
	// ErrDisconnected is returned by NextLine when the device has gone away
	// (hang-up, EOF or EIO). The port cannot recover and must be reopened.
	ErrDisconnected = errors.New("serial device disconnected")
)

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
	Delimiter   string
}

func (c Config) withDefaults() Config {
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.Delimiter == "" {
		c.Delimiter = DefaultDelimiter
	}
	return c
}

// Port is an open serial device. NextLine must only be called from one
// goroutine; Close may be called from any goroutine.
type Port struct {
	fd        int
	config    Config
	delimiter []byte
	pending   []byte
	buf       []byte
	done      chan struct{}
	closeOnce sync.Once
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd
}

// Open opens and configures the device named in cfg. Failure to open is
// returned to the caller; there is no retry.
func Open(cfg Config) (*Port, error) {
	cfg = cfg.withDefaults()

	baud, ok := baudRates[cfg.BaudRate]
	if !ok {
		return nil, errors.Errorf("unsupported baud rate %d", cfg.BaudRate)
	}

	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", cfg.Device)
	}

	if err := configure(fd, baud); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "configure %s", cfg.Device)
	}

	// Drop anything the device sent before we were listening.
	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "flush %s", cfg.Device)
	}

	pipeFds := make([]int, 2)
	if err := unix.Pipe2(pipeFds, unix.O_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "pipe")
	}

	return &Port{
		fd:        fd,
		config:    cfg,
		delimiter: []byte(cfg.Delimiter),
		buf:       make([]byte, 4096),
		done:      make(chan struct{}),
		pipeR:     pipeFds[0],
		pipeW:     pipeFds[1],
	}, nil
}

func configure(fd int, baud uint32) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return errors.Wrap(err, "get termios")
	}

	// Raw mode, no software flow control
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	// Reads are driven by poll, so the line discipline should never wait.
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return errors.Wrap(err, "set termios")
	}
	return nil
}

// Device returns the path the port was opened with.
func (p *Port) Device() string {
	return p.config.Device
}

// NextLine blocks until a full line is available or the read timeout
// elapses. The delimiter is not included. On timeout the partial data
// received so far is returned, possibly empty, with a nil error.
func (p *Port) NextLine() ([]byte, error) {
	deadline := time.Now().Add(p.config.ReadTimeout)

	for {
		if line, ok := p.takeLine(); ok {
			return line, nil
		}

		select {
		case <-p.done:
			return nil, ErrClosed
		default:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return p.takePartial(), nil
		}

		pfd := []unix.PollFd{
			{Fd: int32(p.fd), Events: unix.POLLIN},
			{Fd: int32(p.pipeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(pfd, pollTimeout(remaining))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "poll")
		}
		if n == 0 {
			continue
		}

		if pfd[1].Revents != 0 {
			return nil, ErrClosed
		}

		revents := pfd[0].Revents
		if revents&unix.POLLIN == 0 {
			if revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
				return nil, errors.Wrapf(ErrDisconnected, "device %s hung up", p.config.Device)
			}
			continue
		}

		n, err = unix.Read(p.fd, p.buf)
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err == unix.EIO || err == unix.ENXIO || err == unix.ENODEV {
			return nil, errors.Wrapf(ErrDisconnected, "read %s: %v", p.config.Device, err)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", p.config.Device)
		}
		if n == 0 {
			return nil, errors.Wrapf(ErrDisconnected, "read %s: %v", p.config.Device, io.EOF)
		}
		p.pending = append(p.pending, p.buf[:n]...)
	}
}

func (p *Port) takeLine() ([]byte, bool) {
	idx := bytes.Index(p.pending, p.delimiter)
	if idx < 0 {
		return nil, false
	}

	line := make([]byte, idx)
	copy(line, p.pending[:idx])
	p.pending = p.pending[idx+len(p.delimiter):]
	return line, true
}

func (p *Port) takePartial() []byte {
	line := make([]byte, len(p.pending))
	copy(line, p.pending)
	p.pending = p.pending[:0]
	return line
}

func pollTimeout(d time.Duration) int {
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms < 1 {
		return 1
	}
	return int(ms)
}

// Close closes the serial port and unblocks a pending NextLine call.
// Safe to call multiple times; subsequent calls are no-ops.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		// Wake up poll using self-pipe
		unix.Write(p.pipeW, []byte{1})
		err = unix.Close(p.fd)
		unix.Close(p.pipeR)
		unix.Close(p.pipeW)
	})
	return err
}

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}
