package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// RemoteError is a failed response from a gateway.
type RemoteError struct {
	Method string
	Shape  ErrorShape
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Method, e.Shape.Message, e.Shape.Code)
}

// Conn is the client side of a gateway connection. It is not safe for
// concurrent calls.
type Conn struct {
	ws    *websocket.Conn
	hello HelloOK
	ids   atomic.Int64
}

// Dial connects to a gateway WebSocket URL and completes the connect
// handshake with params.
func Dial(ctx context.Context, url string, params ConnectParams) (*Conn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	ws.SetReadLimit(maxPayload)

	c := &Conn{ws: ws}
	if err := c.connect(ctx, params); err != nil {
		ws.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) connect(ctx context.Context, params ConnectParams) error {
	challenge, err := c.read(ctx)
	if err != nil {
		return fmt.Errorf("reading challenge: %w", err)
	}
	if challenge.Type != FrameTypeEvent || challenge.Event != "connect.challenge" {
		return fmt.Errorf("expected connect.challenge, got %s %s", challenge.Type, challenge.Event)
	}

	if params.MinProtocol == 0 {
		params.MinProtocol = ProtocolVersion
	}
	if params.MaxProtocol == 0 {
		params.MaxProtocol = ProtocolVersion
	}
	return c.Call(ctx, "connect", params, &c.hello, nil)
}

// Hello returns the server's handshake response.
func (c *Conn) Hello() HelloOK { return c.hello }

// Call sends a request and waits for its response, passing any events that
// arrive first to onEvent. The response payload is decoded into out when
// out is non-nil.
func (c *Conn) Call(ctx context.Context, method string, params, out any, onEvent func(Frame)) error {
	id := strconv.FormatInt(c.ids.Add(1), 10)
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}
	if err := c.ws.WriteJSON(req); err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}

	for {
		frame, err := c.read(ctx)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", method, err)
		}
		switch {
		case frame.Type == FrameTypeEvent:
			if onEvent != nil {
				onEvent(frame)
			}
		case frame.Type == FrameTypeResponse && frame.ID == id:
			if !frame.Succeeded() {
				shape := ErrorShape{Code: "unknown", Message: "request failed"}
				if frame.Error != nil {
					shape = *frame.Error
				}
				return &RemoteError{Method: method, Shape: shape}
			}
			if out == nil || len(frame.Payload) == 0 {
				return nil
			}
			return json.Unmarshal(frame.Payload, out)
		}
	}
}

func (c *Conn) read(ctx context.Context) (Frame, error) {
	var frame Frame
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetReadDeadline(deadline)
	} else {
		c.ws.SetReadDeadline(time.Time{})
	}
	if err := c.ws.ReadJSON(&frame); err != nil {
		if ctx.Err() != nil {
			return frame, errors.Join(ctx.Err(), err)
		}
		return frame, err
	}
	return frame, nil
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.ws.Close()
}
