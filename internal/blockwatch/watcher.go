// Package blockwatch streams new block headers from the node over WebSocket
// and logs chain progress while a benchmark is running.
package blockwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Watcher subscribes to newHeads over a WebSocket endpoint.
type Watcher struct {
	url    string
	logger *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Header is the subset of a block header the watcher reports.
type Header struct {
	Number   uint64
	GasUsed  uint64
	GasLimit uint64
	Time     uint64
}

type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type subscribeResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Method string `json:"method"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

type rawHeader struct {
	Number   string `json:"number"`
	GasUsed  string `json:"gasUsed"`
	GasLimit string `json:"gasLimit"`
	Time     string `json:"timestamp"`
}

// New creates a watcher for the given ws:// endpoint.
func New(url string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		url:    url,
		logger: logger.With(slog.String("component", "blockwatch")),
		done:   make(chan struct{}),
	}
}

// Start dials the endpoint, subscribes to newHeads and begins the read loop.
func (w *Watcher) Start(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", w.url, err)
	}

	req := subscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	var resp subscribeResponse
	if err := conn.ReadJSON(&resp); err != nil {
		conn.Close()
		return fmt.Errorf("failed to read subscription response: %w", err)
	}
	if resp.Error != nil {
		conn.Close()
		return fmt.Errorf("subscription rejected: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()

	w.logger.Debug("subscribed to newHeads", slog.String("url", w.url))

	w.wg.Add(1)
	go w.readLoop(conn)

	return nil
}

// Stop closes the connection and waits for the read loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)

		w.connMu.Lock()
		if w.conn != nil {
			w.conn.Close()
		}
		w.connMu.Unlock()

		w.wg.Wait()
	})
}

func (w *Watcher) readLoop(conn *websocket.Conn) {
	defer w.wg.Done()

	for {
		var msg subscribeResponse
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-w.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					w.logger.Warn("header stream closed", slog.String("error", err.Error()))
				}
			}
			return
		}

		if msg.Method != "eth_subscription" || msg.Params == nil {
			continue
		}

		header, err := parseHeader(msg.Params.Result)
		if err != nil {
			w.logger.Debug("skipping unparseable header", slog.String("error", err.Error()))
			continue
		}

		w.logger.Info("new block",
			slog.Uint64("number", header.Number),
			slog.Uint64("gas_used", header.GasUsed),
			slog.Uint64("gas_limit", header.GasLimit),
		)
	}
}

func parseHeader(raw json.RawMessage) (Header, error) {
	var rh rawHeader
	if err := json.Unmarshal(raw, &rh); err != nil {
		return Header{}, fmt.Errorf("failed to decode header: %w", err)
	}

	var h Header
	var err error
	if h.Number, err = parseHexUint(rh.Number); err != nil {
		return Header{}, fmt.Errorf("invalid block number %q: %w", rh.Number, err)
	}
	if h.GasUsed, err = parseHexUint(rh.GasUsed); err != nil {
		return Header{}, fmt.Errorf("invalid gasUsed %q: %w", rh.GasUsed, err)
	}
	if h.GasLimit, err = parseHexUint(rh.GasLimit); err != nil {
		return Header{}, fmt.Errorf("invalid gasLimit %q: %w", rh.GasLimit, err)
	}
	if rh.Time != "" {
		if h.Time, err = parseHexUint(rh.Time); err != nil {
			return Header{}, fmt.Errorf("invalid timestamp %q: %w", rh.Time, err)
		}
	}
	return h, nil
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	return strconv.ParseUint(s, 16, 64)
}
