package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Spoilshield.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionList returns stored sessions, most recent first.
func (c *Client) SessionList(includeUnconfirmed bool) (*SessionListResponse, error) {
	var resp SessionListResponse
	req := SessionListRequest{IncludeUnconfirmed: includeUnconfirmed}
	if err := c.client.Call("Spoilshield.SessionList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionSwitch activates an existing session.
func (c *Client) SessionSwitch(id string) (*SessionSwitchResponse, error) {
	var resp SessionSwitchResponse
	if err := c.client.Call("Spoilshield.SessionSwitch", SessionSwitchRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionDelete removes a session and its message log.
func (c *Client) SessionDelete(id string) (*SessionDeleteResponse, error) {
	var resp SessionDeleteResponse
	if err := c.client.Call("Spoilshield.SessionDelete", SessionDeleteRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Redetect asks the page to rerun show detection.
func (c *Client) Redetect() (*RedetectResponse, error) {
	var resp RedetectResponse
	if err := c.client.Call("Spoilshield.Redetect", RedetectRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
