package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/tracey"
	"github.com/gorilla/websocket"
	"github.com/graph-gophers/graphql-go"
)

// wsProtocol is the WebSocket subprotocol spoken on GET /graphql.
const wsProtocol = "graphql-transport-ws"

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// graphql-transport-ws close codes.
const (
	closeInvalidMessage      = 4400
	closeUnauthorized        = 4401
	closeSubprotocol         = 4406
	closeInitTimeout         = 4408
	closeSubscriberExists    = 4409
	closeTooManyInitRequests = 4429
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsError struct {
	Message string `json:"message"`
}

// wsConn runs the graphql-transport-ws protocol on one connection. Reads happen on the run
// goroutine; every operation writes from its own goroutine under writeMu.
type wsConn struct {
	conn        *websocket.Conn
	schema      *graphql.Schema
	initTimeout time.Duration

	writeMu sync.Mutex

	mu    sync.Mutex
	acked bool
	ops   map[string]context.CancelFunc
	wg    sync.WaitGroup
}

func newWSConn(conn *websocket.Conn, schema *graphql.Schema, initTimeout time.Duration) *wsConn {
	return &wsConn{
		conn:        conn,
		schema:      schema,
		initTimeout: initTimeout,
		ops:         make(map[string]context.CancelFunc),
	}
}

func (c *wsConn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.wg.Wait()
		_ = c.conn.Close()
	}()

	if c.conn.Subprotocol() != wsProtocol {
		c.close(closeSubprotocol, "Subprotocol not acceptable")
		return
	}

	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	initTimer := time.AfterFunc(c.initTimeout, func() {
		c.mu.Lock()
		acked := c.acked
		c.mu.Unlock()
		if !acked {
			c.close(closeInitTimeout, "Connection initialisation timeout")
		}
	})
	defer initTimer.Stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				tracey.Logger().Debug("websocket read ended", "error", err)
			}
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.close(closeInvalidMessage, "Invalid message received")
			return
		}
		if !c.handle(ctx, msg) {
			return
		}
	}
}

// handle processes one client message and reports whether the connection stays open.
func (c *wsConn) handle(ctx context.Context, msg wsMessage) bool {
	switch msg.Type {
	case msgConnectionInit:
		c.mu.Lock()
		again := c.acked
		c.acked = true
		c.mu.Unlock()
		if again {
			c.close(closeTooManyInitRequests, "Too many initialisation requests")
			return false
		}
		c.write(wsMessage{Type: msgConnectionAck})
	case msgPing:
		c.write(wsMessage{Type: msgPong})
	case msgPong:
	case msgSubscribe:
		return c.subscribe(ctx, msg)
	case msgComplete:
		c.mu.Lock()
		if stop, ok := c.ops[msg.ID]; ok {
			delete(c.ops, msg.ID)
			stop()
		}
		c.mu.Unlock()
	default:
		c.close(closeInvalidMessage, fmt.Sprintf("Invalid message type %q", msg.Type))
		return false
	}
	return true
}

func (c *wsConn) subscribe(ctx context.Context, msg wsMessage) bool {
	var req queryRequest
	if msg.ID == "" || json.Unmarshal(msg.Payload, &req) != nil || req.Query == "" {
		c.close(closeInvalidMessage, "Invalid subscribe message")
		return false
	}

	c.mu.Lock()
	if !c.acked {
		c.mu.Unlock()
		c.close(closeUnauthorized, "Unauthorized")
		return false
	}
	if _, exists := c.ops[msg.ID]; exists {
		c.mu.Unlock()
		c.close(closeSubscriberExists, fmt.Sprintf("Subscriber for %s already exists", msg.ID))
		return false
	}
	opCtx, stop := context.WithCancel(ctx)
	c.ops[msg.ID] = stop
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer stop()
		c.execute(opCtx, msg.ID, req)
	}()
	return true
}

func (c *wsConn) execute(ctx context.Context, id string, req queryRequest) {
	responses, err := c.schema.Subscribe(ctx, req.Query, req.OperationName, req.Variables)
	if err != nil {
		if c.finish(id) {
			payload, _ := json.Marshal([]wsError{{Message: err.Error()}})
			c.write(wsMessage{ID: id, Type: msgError, Payload: payload})
		}
		return
	}
	for resp := range responses {
		payload, err := json.Marshal(resp)
		if err != nil {
			tracey.Logger().Warn("encode subscription response", "id", id, "error", err)
			continue
		}
		c.write(wsMessage{ID: id, Type: msgNext, Payload: payload})
	}
	if c.finish(id) && ctx.Err() == nil {
		c.write(wsMessage{ID: id, Type: msgComplete})
	}
}

// finish unregisters operation id and reports whether it was still registered, which is false
// once the client completed it.
func (c *wsConn) finish(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ops[id]
	delete(c.ops, id)
	return ok
}

func (c *wsConn) write(msg wsMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		tracey.Logger().Debug("websocket write failed", "type", msg.Type, "error", err)
	}
}

func (c *wsConn) close(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = c.conn.Close()
}
