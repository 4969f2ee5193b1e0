package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/loglink/internal/model"
)

// Client implements model.Recorder over a socket using JSON-RPC 2.0.
// Once the connection breaks every call fails with model.ErrStaleRecorder.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
	broken  error
	info    model.RecorderInfo
}

var _ model.Recorder = (*Client)(nil)

// Dial connects to the recorder at address and reads its identity.
func Dial(ctx context.Context, network, address string) (*Client, error) {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	c := &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}
	if err := c.call(ctx, "Info", nil, &c.info); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socketrpc: info: %w", err)
	}
	return c, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken == nil {
		c.broken = errors.New("client closed")
	}
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(ctx context.Context, method string, params any, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return fmt.Errorf("socketrpc: %s: %w: %v", method, model.ErrStaleRecorder, c.broken)
	}

	c.nextID++
	id := c.nextID

	var paramsData json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("socketrpc: marshal params: %w", err)
		}
		paramsData = data
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	deadline := time.Now().Add(model.DefaultRPCTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return c.fail(method, fmt.Errorf("send: %w", err))
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return c.fail(method, fmt.Errorf("read: %w", err))
		}
		return c.fail(method, errors.New("connection closed"))
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != id {
		return c.fail(method, fmt.Errorf("response id %d, want %d", resp.ID, id))
	}

	if resp.Error != nil {
		return resp.Error
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

// fail marks the connection unusable. The framing cannot be resynchronised
// after a transport error.
func (c *Client) fail(method string, err error) error {
	c.broken = err
	c.conn.Close()
	return fmt.Errorf("socketrpc: %s: %w: %v", method, model.ErrStaleRecorder, err)
}

func (c *Client) Location() model.Location { return c.info.Location }
func (c *Client) RankCount() int           { return c.info.RankCount }

func (c *Client) SetVerbosity(ctx context.Context, level model.Verbosity) error {
	return c.call(ctx, "SetVerbosity", levelParams{Level: level}, nil)
}

func (c *Client) Verbosity(ctx context.Context) (model.Verbosity, error) {
	var result model.Verbosity
	err := c.call(ctx, "Verbosity", nil, &result)
	return result, err
}

func (c *Client) SetCategoryVerbosity(ctx context.Context, category model.Category, level model.Verbosity) error {
	return c.call(ctx, "SetCategoryVerbosity", categoryParams{Category: category, Level: level}, nil)
}

func (c *Client) ClearCategoryVerbosity(ctx context.Context, category model.Category) error {
	return c.call(ctx, "ClearCategoryVerbosity", categoryParams{Category: category}, nil)
}

func (c *Client) CategoryVerbosity(ctx context.Context, category model.Category) (model.Verbosity, bool, error) {
	var result categoryVerbosityResult
	err := c.call(ctx, "CategoryVerbosity", categoryParams{Category: category}, &result)
	return result.Level, result.Overridden, err
}

func (c *Client) ClearLogs(ctx context.Context) error {
	return c.call(ctx, "ClearLogs", nil, nil)
}

func (c *Client) FetchLog(ctx context.Context, rank int) (string, error) {
	var result string
	err := c.call(ctx, "FetchLog", rankParams{Rank: rank}, &result)
	return result, err
}

func (c *Client) StartingLog(ctx context.Context, rank int) (string, error) {
	var result string
	err := c.call(ctx, "StartingLog", rankParams{Rank: rank}, &result)
	return result, err
}
