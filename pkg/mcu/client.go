package mcu

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/link"
)

// DefaultTimeout is the per-call timeout when Client.Timeout is zero.
const DefaultTimeout = 2 * time.Second

// Client issues commands over a link.
type Client struct {
	Caller  link.Caller
	Timeout time.Duration
}

// NewClient creates a Client.
func NewClient(c link.Caller) *Client {
	return &Client{Caller: c, Timeout: DefaultTimeout}
}

// CallTimeout returns the timeout applied to each call.
func (c *Client) CallTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Call sends a raw command and returns the reply payload. The reply must be
// an Ack or Response.
func (c *Client) Call(ctx context.Context, cmd uint16, data []byte) ([]byte, error) {
	resp, err := c.call(ctx, cmd, data)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) call(ctx context.Context, cmd uint16, data []byte) (*frame.Frame, error) {
	if c.Caller == nil {
		return nil, link.ErrInvalidParameter
	}
	req := frame.New(frame.TypeRequest, c.Caller.NextSeq(), cmd, data)
	resp, err := c.Caller.SendAndWait(ctx, req, c.Timeout)
	if err != nil {
		glog.V(1).Infof("cmd 0x%04x %s: %v", cmd, CommandName(cmd), err)
		return nil, fmt.Errorf("cmd 0x%04x: %w", cmd, err)
	}
	if err := link.CheckReply(req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// exec runs a command without a meaningful reply payload.
func (c *Client) exec(ctx context.Context, cmd uint16, data []byte) error {
	_, err := c.call(ctx, cmd, data)
	return err
}

// query runs a command and parses the reply with parse.
func (c *Client) query(ctx context.Context, cmd uint16, data []byte, parse func(*reader)) error {
	resp, err := c.call(ctx, cmd, data)
	if err != nil {
		return err
	}
	r := newReader(resp.Data)
	parse(r)
	if r.err != nil {
		return fmt.Errorf("cmd 0x%04x: %w", cmd, r.err)
	}
	return nil
}
