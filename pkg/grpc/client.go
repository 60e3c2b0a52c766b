package grpc

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

// Client talks to a Server over one TCP connection, issuing newline-delimited
// JSON requests. Calls are serialized on the connection, so a Client may be
// shared across goroutines.
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	mu      sync.Mutex
	nextID  atomic.Int64
}

// Dial connects to the RPC server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
	}, nil
}

// Call invokes method with params and decodes the server's data payload into
// result. A nil result discards the payload; a nil params sends null.
func (c *Client) Call(method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	req := Request{
		Method: method,
		ID:     strconv.FormatInt(c.nextID.Add(1), 10),
		Params: raw,
	}
	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	var resp Response
	if err := c.decoder.Decode(&resp); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("rpc error: %s", resp.Error)
	}
	if result == nil {
		return nil
	}

	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("marshaling response data: %w", err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("unmarshaling into result: %w", err)
	}
	return nil
}

// Close drops the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
