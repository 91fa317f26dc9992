// Package realtime exposes the kernel manager over a websocket hub and a
// JSON REST API.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cas-bridge/internal/dialect"
	"cas-bridge/internal/protocol"
	"cas-bridge/internal/repl"
	"cas-bridge/internal/session"
	"cas-bridge/internal/syntax"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// Server manages WebSocket connections and routes messages between clients
// and the kernel manager.
type Server struct {
	kernels   *session.Manager
	clients   map[*client]bool
	clientsMu sync.RWMutex
	staticDir string
	log       *slog.Logger

	// subscriptions tracks kernel subscriptions per client.
	// key: client, value: map[kernelID]subscriptionID
	subscriptions   map[*client]map[string]string
	subscriptionsMu sync.Mutex
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server

	// ctx is cancelled when the connection goes away, abandoning any
	// execution the client is waiting on.
	ctx    context.Context
	cancel context.CancelFunc

	// executions holds one FIFO queue per kernel; a single worker drains
	// each so cells run in the order the client sent them.
	executions   map[string]chan protocol.KernelExecutePayload
	executionsMu sync.Mutex
}

const executionQueueSize = 256

func newClient(s *Server, conn *websocket.Conn) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		conn:       conn,
		send:       make(chan []byte, 256),
		server:     s,
		ctx:        ctx,
		cancel:     cancel,
		executions: make(map[string]chan protocol.KernelExecutePayload),
	}
}

// New creates a new realtime server. A nil logger means slog.Default().
func New(kernels *session.Manager, staticDir string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		kernels:       kernels,
		clients:       make(map[*client]bool),
		staticDir:     staticDir,
		log:           log,
		subscriptions: make(map[*client]map[string]string),
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("POST /kernels", s.handleCreateKernel)
	mux.HandleFunc("GET /kernels", s.handleListKernels)
	mux.HandleFunc("GET /kernels/{id}", s.handleGetKernel)
	mux.HandleFunc("POST /kernels/{id}/execute", s.handleExecute)
	mux.HandleFunc("POST /kernels/{id}/is_complete", s.handleIsComplete)
	mux.HandleFunc("DELETE /kernels/{id}", s.handleDeleteKernel)
	mux.HandleFunc("GET /dialects", s.handleListDialects)
	mux.HandleFunc("POST /dialects/{name}/is_complete", s.handleClassify)

	if s.staticDir != "" {
		fileServer := http.FileServer(http.Dir(s.staticDir))
		mux.Handle("/", fileServer)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "error", err)
		return
	}

	c := newClient(s, conn)

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	s.subscriptionsMu.Lock()
	s.subscriptions[c] = make(map[string]string)
	s.subscriptionsMu.Unlock()

	s.sendKernelList(c)

	// Subscribe to kernels that existed before this connection.
	s.subscribeClientToLiveKernels(c)

	go c.writePump()
	go c.readPump()
}

// enqueue queues data for the client, dropping it when the client is gone
// or its buffer is full.
func (c *client) enqueue(data []byte) {
	select {
	case <-c.ctx.Done():
	case c.send <- data:
	default:
	}
}

func (c *client) sendMessage(msgType string, payload any) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		c.server.log.Error("encode message", "type", msgType, "error", err)
		return
	}
	data, _ := json.Marshal(msg)
	c.enqueue(data)
}

func (s *Server) sendKernelList(c *client) {
	for _, k := range s.kernels.List() {
		c.sendMessage(protocol.TypeKernelUpdate, kernelPayload(k))
	}
}

func kernelPayload(k session.Kernel) protocol.KernelUpdatePayload {
	return protocol.KernelUpdatePayload{
		ID:        k.ID,
		Dialect:   k.Dialect,
		State:     k.State,
		Label:     k.Label,
		CreatedAt: k.CreatedAt.Format(time.RFC3339Nano),
	}
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.log.Warn("websocket read", "error", err)
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()

	s.subscriptionsMu.Lock()
	subs := s.subscriptions[c]
	delete(s.subscriptions, c)
	s.subscriptionsMu.Unlock()

	for kernelID, subID := range subs {
		s.kernels.Unsubscribe(kernelID, subID)
	}

	c.cancel()
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeKernelCreate:
		s.handleWSCreate(c, msg)
	case protocol.TypeKernelExecute:
		s.handleWSExecute(c, msg)
	case protocol.TypeKernelIsComplete:
		s.handleWSIsComplete(c, msg)
	case protocol.TypeKernelKill:
		s.handleWSKill(c, msg)
	case protocol.TypeKernelStatus:
		s.handleWSStatus(c, msg)
	}
}

func (s *Server) handleWSCreate(c *client, msg *protocol.Message) {
	var payload protocol.KernelCreatePayload
	json.Unmarshal(msg.Payload, &payload)

	k, err := s.kernels.Create(payload.Dialect, payload.Label)
	if err != nil {
		s.sendError(c, errorCode(err), err.Error())
		return
	}
	s.kernelCreated(k)
}

// kernelCreated announces a new kernel and subscribes every client to it.
func (s *Server) kernelCreated(k *session.Kernel) {
	msg, err := protocol.NewMessage(protocol.TypeKernelUpdate, kernelPayload(*k))
	if err == nil {
		s.broadcast(msg)
	}
	s.subscribeAllClients(k.ID)
}

// handleWSExecute queues the cell behind earlier cells for the same kernel.
// The result reaches the client through its kernel subscription.
func (s *Server) handleWSExecute(c *client, msg *protocol.Message) {
	var payload protocol.KernelExecutePayload
	json.Unmarshal(msg.Payload, &payload)

	s.subscribeClient(c, payload.KernelID)
	select {
	case c.executionQueue(payload.KernelID) <- payload:
	case <-c.ctx.Done():
	}
}

// executionQueue returns the kernel's queue, starting its worker on first
// use.
func (c *client) executionQueue(kernelID string) chan<- protocol.KernelExecutePayload {
	c.executionsMu.Lock()
	defer c.executionsMu.Unlock()

	q, ok := c.executions[kernelID]
	if !ok {
		q = make(chan protocol.KernelExecutePayload, executionQueueSize)
		c.executions[kernelID] = q
		go c.executePump(q)
	}
	return q
}

// executePump runs queued cells one at a time until the client goes away.
func (c *client) executePump(q <-chan protocol.KernelExecutePayload) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case p := <-q:
			_, err := c.server.kernels.Execute(c.ctx, p.KernelID, p.Seq, p.Code)
			if err != nil && c.ctx.Err() == nil {
				c.server.sendError(c, errorCode(err), err.Error())
			}
		}
	}
}

func (s *Server) handleWSIsComplete(c *client, msg *protocol.Message) {
	var payload protocol.KernelIsCompletePayload
	json.Unmarshal(msg.Payload, &payload)

	var v syntax.Verdict
	var err error
	if payload.KernelID != "" {
		v, err = s.kernels.IsComplete(payload.KernelID, payload.Code)
	} else {
		v, err = s.kernels.Classify(payload.Dialect, payload.Code)
	}
	if err != nil {
		s.sendError(c, errorCode(err), err.Error())
		return
	}
	c.sendMessage(protocol.TypeKernelVerdict, protocol.KernelVerdictPayload{
		KernelID:   payload.KernelID,
		Dialect:    payload.Dialect,
		Status:     string(v.Status),
		Code:       v.Code,
		Statements: v.Statements,
		Message:    v.Message,
	})
}

func (s *Server) handleWSKill(c *client, msg *protocol.Message) {
	var payload protocol.KernelIDPayload
	json.Unmarshal(msg.Payload, &payload)

	if err := s.kernels.Kill(payload.KernelID); err != nil {
		s.sendError(c, errorCode(err), err.Error())
	}
}

func (s *Server) handleWSStatus(c *client, msg *protocol.Message) {
	var payload protocol.KernelIDPayload
	json.Unmarshal(msg.Payload, &payload)

	k, err := s.kernels.Get(payload.KernelID)
	if err != nil {
		s.sendError(c, errorCode(err), err.Error())
		return
	}
	c.sendMessage(protocol.TypeKernelUpdate, kernelPayload(*k))
}

// broadcast sends a message to all connected clients.
func (s *Server) broadcast(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for c := range s.clients {
		c.enqueue(data)
	}
}

// subscribeAllClients subscribes all connected clients to a kernel.
func (s *Server) subscribeAllClients(kernelID string) {
	s.clientsMu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		s.subscribeClient(c, kernelID)
	}
}

// subscribeClientToLiveKernels subscribes a new client to every kernel
// whose engine is still running.
func (s *Server) subscribeClientToLiveKernels(c *client) {
	for _, k := range s.kernels.List() {
		if k.State != repl.StatusExited.String() {
			s.subscribeClient(c, k.ID)
		}
	}
}

// subscribeClient subscribes a single client to a kernel's events and
// replays its history.
func (s *Server) subscribeClient(c *client, kernelID string) {
	s.subscriptionsMu.Lock()
	subs, connected := s.subscriptions[c]
	if !connected {
		s.subscriptionsMu.Unlock()
		return
	}
	if _, exists := subs[kernelID]; exists {
		s.subscriptionsMu.Unlock()
		return
	}

	subID, ch, history, err := s.kernels.Subscribe(kernelID)
	if err != nil {
		s.subscriptionsMu.Unlock()
		return
	}
	subs[kernelID] = subID
	s.subscriptionsMu.Unlock()

	for _, event := range history {
		s.sendEvent(c, event)
	}

	go func() {
		for event := range ch {
			s.sendEvent(c, event)
		}
	}()
}

func (s *Server) sendEvent(c *client, event session.Event) {
	switch event.Type {
	case session.EventResult:
		r := repl.Response{Seq: event.Seq, OK: event.OK, Segments: event.Segments}
		c.sendMessage(protocol.TypeKernelResult, resultPayload(event.KernelID, r))
	case session.EventExit:
		c.sendMessage(protocol.TypeKernelTerminated, protocol.KernelTerminatedPayload{
			KernelID: event.KernelID,
			ExitCode: event.ExitCode,
		})
	}
}

func resultPayload(kernelID string, r repl.Response) protocol.KernelResultPayload {
	p := protocol.KernelResultPayload{
		KernelID: kernelID,
		Seq:      r.Seq,
		OK:       r.OK,
		Segments: r.Segments,
	}
	if r.OK {
		for _, item := range repl.Render(r) {
			p.Display = append(p.Display, protocol.DisplayItem{Data: item.Data, Result: item.Result})
		}
	}
	return p
}

func (s *Server) sendError(c *client, code, message string) {
	c.sendMessage(protocol.TypeError, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	})
}

// OnDialectsReloaded broadcasts the current dialect table. The profile
// watcher calls it after a successful reload.
func (s *Server) OnDialectsReloaded(profiles []*dialect.Profile) {
	msg, err := protocol.NewMessage(protocol.TypeDialectsUpdate, protocol.DialectsUpdatePayload{
		Dialects: dialectInfos(profiles),
	})
	if err != nil {
		return
	}
	s.broadcast(msg)
}

func dialectInfos(profiles []*dialect.Profile) []protocol.DialectInfo {
	infos := make([]protocol.DialectInfo, 0, len(profiles))
	for _, p := range profiles {
		infos = append(infos, protocol.DialectInfo{
			Name:        p.Name,
			DisplayName: p.Title(),
			Command:     p.Command,
			Scratch:     p.UseScratch,
		})
	}
	return infos
}
