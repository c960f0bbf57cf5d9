package phonoglyph

import (
	"context"
	"errors"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/events"
)

const initialStateTimeout = 5 * time.Second

// RPCRequest is a JSON-RPC 2.0 call received on the events socket.
type RPCRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
	ID      interface{}            `json:"id,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

const (
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
)

// handleEvents upgrades to a websocket, pushes the current state, subscribes
// the connection to the broadcaster and serves RPC calls until it closes.
func (s *Service) handleEvents(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to accept events websocket")
		return
	}
	defer conn.CloseNow()

	connectionID := uuid.New().String()
	l := s.logger.With().Str("component", "events-ws").Str("connectionID", connectionID).Logger()
	ctx := c.Request.Context()

	if err := s.sendInitialState(ctx, conn); err != nil {
		l.Warn().Err(err).Msg("failed to send initial state")
		return
	}

	s.broadcaster.Subscribe(connectionID, conn, ctx, &l)
	defer s.broadcaster.Unsubscribe(connectionID)

	for {
		var req RPCRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				l.Debug().Msg("events websocket closed")
			} else {
				l.Debug().Err(err).Msg("events websocket read ended")
			}
			return
		}

		resp := s.handleRPC(req)
		if req.ID == nil {
			continue
		}
		writeCtx, cancel := context.WithTimeout(ctx, s.cfg.HTTP.EventWriteTimeout)
		err := wsjson.Write(writeCtx, conn, resp)
		cancel()
		if err != nil {
			l.Warn().Err(err).Str("method", req.Method).Msg("failed to send rpc response")
			return
		}
	}
}

// sendInitialState gives a new subscriber the sync status, active alerts
// and last parameter values before any broadcast reaches it.
func (s *Service) sendInitialState(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, initialStateTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, events.Envelope{Type: events.EnvelopeSyncStatus, Data: s.syncStatus()}); err != nil {
		return err
	}
	for _, alert := range s.monitor.GetActiveAlerts() {
		if err := wsjson.Write(ctx, conn, events.Envelope{Type: events.EnvelopeSyncAlert, Data: alert}); err != nil {
			return err
		}
	}
	for _, v := range s.values.snapshot() {
		if err := wsjson.Write(ctx, conn, events.Envelope{Type: events.EnvelopeParameterValue, Data: v}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) handleRPC(req RPCRequest) RPCResponse {
	resp := RPCResponse{JSONRPC: "2.0", ID: req.ID}
	if !isControlMethod(req.Method) {
		resp.Error = &RPCError{Code: rpcMethodNotFound, Message: "method not found: " + req.Method}
		return resp
	}

	result, err := s.handleControlRPC(req.Method, req.Params)
	if err != nil {
		resp.Error = &RPCError{Code: rpcInvalidParams, Message: err.Error()}
		return resp
	}
	resp.Result = result
	return resp
}
