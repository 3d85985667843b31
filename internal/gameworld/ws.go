package gameworld

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// wsFrame is the wire format shared with the world server. Push frames carry
// Kind + Data; request/response frames carry Op + ReqID.
type wsFrame struct {
	Op     string          `json:"op,omitempty"`
	ReqID  string          `json:"req_id,omitempty"`
	Kind   string          `json:"kind,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
	Skill  string          `json:"skill,omitempty"`
	Params map[string]any  `json:"params,omitempty"`
}

// WSClient speaks a JSON frame protocol to a game-world server over a
// websocket. One reader goroutine demultiplexes push callbacks and
// request replies.
type WSClient struct {
	log    *zap.Logger
	url    string
	selfID string

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan wsFrame
}

func NewWSClient(log *zap.Logger, url, selfID string) *WSClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSClient{
		log:     log,
		url:     url,
		selfID:  selfID,
		pending: map[string]chan wsFrame{},
	}
}

func (c *WSClient) SelfID() string { return c.selfID }

func (c *WSClient) Start(ctx context.Context, cb Callbacks) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial world server: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(ctx, cb)
	return nil
}

func (c *WSClient) readLoop(ctx context.Context, cb Callbacks) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("world connection read failed", zap.Error(err))
			}
			c.failPending(err)
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn("malformed world frame", zap.Error(err))
			continue
		}
		if frame.ReqID != "" {
			c.resolvePending(frame)
			continue
		}
		c.deliver(frame, cb)
	}
}

func (c *WSClient) deliver(frame wsFrame, cb Callbacks) {
	switch frame.Kind {
	case "entity_moved":
		var upd EntityUpdate
		if json.Unmarshal(frame.Data, &upd) == nil && cb.EntityMoved != nil {
			cb.EntityMoved(upd)
		}
	case "entity_appeared":
		var ref EntityRef
		if json.Unmarshal(frame.Data, &ref) == nil && cb.EntityAppeared != nil {
			cb.EntityAppeared(ref)
		}
	case "arm_swing":
		var ref EntityRef
		if json.Unmarshal(frame.Data, &ref) == nil && cb.ArmSwing != nil {
			cb.ArmSwing(ref)
		}
	case "sneak_toggle":
		var payload struct {
			EntityRef
			Sneaking bool `json:"sneaking"`
		}
		if json.Unmarshal(frame.Data, &payload) == nil && cb.SneakToggle != nil {
			cb.SneakToggle(payload.EntityRef, payload.Sneaking)
		}
	case "health":
		var vitals Vitals
		if json.Unmarshal(frame.Data, &vitals) == nil && cb.HealthChanged != nil {
			cb.HealthChanged(vitals)
		}
	case "sound":
		var snd Sound
		if json.Unmarshal(frame.Data, &snd) == nil && cb.Sound != nil {
			cb.Sound(snd)
		}
	case "item_collected":
		var payload struct {
			EntityRef
			Item string `json:"item"`
		}
		if json.Unmarshal(frame.Data, &payload) == nil && cb.ItemCollected != nil {
			cb.ItemCollected(payload.EntityRef, payload.Item)
		}
	case "chat":
		var chat Chat
		if json.Unmarshal(frame.Data, &chat) == nil && cb.Chat != nil {
			cb.Chat(chat)
		}
	case "system":
		var msg string
		if json.Unmarshal(frame.Data, &msg) == nil && cb.System != nil {
			cb.System(msg)
		}
	default:
		c.log.Debug("unknown world frame kind", zap.String("kind", frame.Kind))
	}
}

func (c *WSClient) Status(ctx context.Context) (Status, error) {
	frame, err := c.request(ctx, wsFrame{Op: "status"})
	if err != nil {
		return Status{}, err
	}
	if frame.Error != "" {
		return Status{}, fmt.Errorf("world error: %s", frame.Error)
	}
	var status Status
	if err := json.Unmarshal(frame.Data, &status); err != nil {
		return Status{}, fmt.Errorf("decode status: %w", err)
	}
	if status.PolledAt.IsZero() {
		status.PolledAt = time.Now().UTC()
	}
	return status, nil
}

func (c *WSClient) Invoke(ctx context.Context, skill string, params map[string]any) (SkillResult, error) {
	frame, err := c.request(ctx, wsFrame{Op: "invoke", Skill: skill, Params: params})
	if err != nil {
		return SkillResult{}, err
	}
	if frame.Error != "" {
		return SkillResult{OK: false, Err: frame.Error}, nil
	}
	var result SkillResult
	if err := json.Unmarshal(frame.Data, &result); err != nil {
		return SkillResult{}, fmt.Errorf("decode skill result: %w", err)
	}
	return result, nil
}

func (c *WSClient) request(ctx context.Context, frame wsFrame) (wsFrame, error) {
	frame.ReqID = ulid.Make().String()
	reply := make(chan wsFrame, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return wsFrame{}, fmt.Errorf("world client not connected")
	}
	c.pending[frame.ReqID] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, frame.ReqID)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(frame)
	if err != nil {
		return wsFrame{}, fmt.Errorf("encode frame: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return wsFrame{}, fmt.Errorf("write frame: %w", err)
	}

	select {
	case <-ctx.Done():
		return wsFrame{}, ctx.Err()
	case resp, ok := <-reply:
		if !ok {
			return wsFrame{}, fmt.Errorf("world connection closed")
		}
		return resp, nil
	}
}

func (c *WSClient) resolvePending(frame wsFrame) {
	c.mu.Lock()
	reply, ok := c.pending[frame.ReqID]
	if ok {
		delete(c.pending, frame.ReqID)
	}
	c.mu.Unlock()
	if ok {
		reply <- frame
	}
}

func (c *WSClient) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, reply := range c.pending {
		close(reply)
		delete(c.pending, id)
	}
	c.conn = nil
	if err != nil {
		c.log.Debug("failing in-flight world requests", zap.Error(err))
	}
}

func (c *WSClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "shutdown")
}
