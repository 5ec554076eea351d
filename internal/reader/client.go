package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"cardprobe/internal/protocol/pn532"
)

var (
	ErrNotConnected = errors.New("reader not connected")
	ErrTimeout      = errors.New("reader response timeout")
	ErrClosed       = errors.New("reader connection closed")
)

// Port is the byte link to the PN532. serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
}

// Packet is raw bytes received from the reader.
type Packet struct {
	When time.Time
	Data []byte
}

type session struct {
	name    string
	port    Port
	packets chan Packet
	errs    chan error
	done    chan struct{}
}

// Client manages a single PN532 serial session.
type Client struct {
	mu      sync.RWMutex
	xmu     sync.Mutex
	session *session
	pending []byte
	log     logrus.FieldLogger
}

func NewClient(log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{log: log}
}

// Ports lists the serial ports a PN532 could be attached to.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// Open opens a serial port in 8N1 mode and attaches it.
func (c *Client) Open(name string, baud int) error {
	if name == "" {
		return fmt.Errorf("serial port not configured")
	}
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		_ = port.Close()
		return fmt.Errorf("configure %s: %w", name, err)
	}
	return c.Attach(port, name)
}

// Attach starts a session over an already open port.
func (c *Client) Attach(port Port, name string) error {
	s := &session{
		name:    name,
		port:    port,
		packets: make(chan Packet, 256),
		errs:    make(chan error, 32),
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.session = s
	c.mu.Unlock()

	go c.readLoop(s)
	c.log.WithField("port", name).Info("reader attached")
	return nil
}

func (c *Client) readLoop(s *session) {
	defer func() {
		close(s.packets)
		close(s.errs)
		close(s.done)

		c.mu.Lock()
		if c.session == s {
			c.session = nil
		}
		c.mu.Unlock()
	}()

	buf := make([]byte, 512)
	for {
		n, err := s.port.Read(buf)
		if err != nil {
			select {
			case s.errs <- err:
			default:
			}
			return
		}
		if n <= 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case s.packets <- Packet{When: time.Now(), Data: data}:
		default:
			c.log.WithField("bytes", n).Warn("reader packet dropped")
		}
	}
}

func (c *Client) Close() error {
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()
	if s == nil {
		return nil
	}

	if err := s.port.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
	case <-time.After(1200 * time.Millisecond):
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil
}

func (c *Client) PortName() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return "", false
	}
	return c.session.name, true
}

func (c *Client) current() *session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) SendRaw(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	s := c.current()
	if s == nil {
		return ErrNotConnected
	}
	_, err := s.port.Write(data)
	return err
}

// Exchange sends one command frame built by the pn532 package and waits for
// the matching response frame, skipping the ACK. Calls are serialized.
func (c *Client) Exchange(ctx context.Context, packet []byte, timeout time.Duration) (pn532.Frame, error) {
	if !pn532.VerifyPacket(packet) {
		return pn532.Frame{}, fmt.Errorf("invalid command frame")
	}
	command := packet[6]

	c.xmu.Lock()
	defer c.xmu.Unlock()

	s := c.current()
	if s == nil {
		return pn532.Frame{}, ErrNotConnected
	}
	c.drain(s)

	if err := c.SendRaw(packet); err != nil {
		return pn532.Frame{}, fmt.Errorf("send 0x%02X: %w", command, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	want := pn532.ResponseCode(command)
	for {
		select {
		case <-ctx.Done():
			return pn532.Frame{}, ctx.Err()
		case <-timer.C:
			return pn532.Frame{}, fmt.Errorf("command 0x%02X: %w", command, ErrTimeout)
		case err, ok := <-s.errs:
			if !ok {
				return pn532.Frame{}, ErrClosed
			}
			return pn532.Frame{}, fmt.Errorf("command 0x%02X: %w", command, err)
		case packet, ok := <-s.packets:
			if !ok {
				return pn532.Frame{}, ErrClosed
			}
			c.pending = append(c.pending, packet.Data...)
			frames, rest := pn532.ParseFrames(c.pending)
			c.pending = rest
			for _, f := range frames {
				switch {
				case f.ACK:
					continue
				case f.ErrorFrame():
					return pn532.Frame{}, fmt.Errorf("command 0x%02X: chip reported error frame", command)
				case f.TFI == pn532.PN532ToHost && f.Command == want:
					return f, nil
				}
			}
		}
	}
}

func (c *Client) drain(s *session) {
	c.pending = c.pending[:0]
	for {
		select {
		case _, ok := <-s.packets:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
