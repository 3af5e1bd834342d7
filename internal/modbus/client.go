package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

var ErrNotConnected = errors.New("not connected")

type Client struct {
	address       string
	conn          net.Conn
	mu            sync.Mutex
	transactionID uint16
	timeout       time.Duration
	connected     bool
}

func NewClient(address string, timeout time.Duration) *Client {
	return &Client{
		address: address,
		timeout: timeout,
	}
}

// Connect stellt TCP-Verbindung her
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	conn, err := net.DialTimeout("tcp", c.address, c.timeout)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true

	return nil
}

// Close schließt die Verbindung
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	err := c.conn.Close()
	c.connected = false
	c.conn = nil

	return err
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendFrame sendet ein Frame und wartet auf Response. The deadline is the
// client timeout or the context deadline, whichever comes first.
func (c *Client) SendFrame(ctx context.Context, request *ModbusFrame) (*ModbusFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Unique Transaction ID
	c.transactionID++
	request.TransactionID = c.transactionID

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline failed: %w", err)
	}

	if _, err := c.conn.Write(request.Encode()); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	// Header zuerst, dann den Rest laut Length-Feld
	buf := make([]byte, maxFrameSize)
	if _, err := io.ReadFull(c.conn, buf[:mbapHeaderSize]); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}
	length := int(binary.BigEndian.Uint16(buf[4:6]))
	if length < 2 || mbapHeaderSize-1+length > maxFrameSize {
		c.dropLocked()
		return nil, fmt.Errorf("invalid frame length: %d", length)
	}
	total := mbapHeaderSize - 1 + length
	if _, err := io.ReadFull(c.conn, buf[mbapHeaderSize:total]); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}

	response, err := DecodeFrame(buf[:total])
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	// Transaction ID prüfen
	if response.TransactionID != request.TransactionID {
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d",
			request.TransactionID, response.TransactionID)
	}

	return response, nil
}

// dropLocked closes a connection whose stream position is unknown.
func (c *Client) dropLocked() {
	c.conn.Close()
	c.conn = nil
	c.connected = false
}

// ReadHoldingRegisters liest Holding Registers
func (c *Client) ReadHoldingRegisters(ctx context.Context, unitID uint8, startAddr uint16, quantity uint16) ([]uint16, error) {
	request := ReadHoldingRegistersRequest(0, unitID, startAddr, quantity)

	response, err := c.SendFrame(ctx, request)
	if err != nil {
		return nil, err
	}

	registers, err := response.ParseRegisterResponse()
	if err != nil {
		return nil, err
	}
	if len(registers) != int(quantity) {
		return nil, fmt.Errorf("expected %d registers, got %d", quantity, len(registers))
	}
	return registers, nil
}

// WriteSingleRegister schreibt ein einzelnes Register
func (c *Client) WriteSingleRegister(ctx context.Context, unitID uint8, addr uint16, value uint16) error {
	request := WriteSingleRegisterRequest(0, unitID, addr, value)

	response, err := c.SendFrame(ctx, request)
	if err != nil {
		return err
	}
	return response.Err()
}

// WriteMultipleRegisters schreibt zusammenhängende Register
func (c *Client) WriteMultipleRegisters(ctx context.Context, unitID uint8, startAddr uint16, values []uint16) error {
	if len(values) == 0 || len(values) > MaxRegistersPerWrite {
		return fmt.Errorf("invalid register count: %d", len(values))
	}

	request := WriteMultipleRegistersRequest(0, unitID, startAddr, values)

	response, err := c.SendFrame(ctx, request)
	if err != nil {
		return err
	}
	return response.Err()
}
