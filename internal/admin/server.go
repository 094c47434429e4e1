package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/asg0451/crakv/internal/chaos"
	"github.com/asg0451/crakv/internal/events"
	"github.com/asg0451/crakv/internal/logger"
	"github.com/asg0451/crakv/internal/metrics"
	"github.com/asg0451/crakv/internal/node"
	"github.com/asg0451/crakv/internal/recovery"
	"github.com/asg0451/crakv/internal/scenario"
)

const statsInterval = 1 * time.Second

// Server は管理用のHTTPサーバー
// ノードの統計をJSONで返し、イベントをWebSocketで配信する
type Server struct {
	addr     string
	eventBus *events.Bus

	mu        sync.RWMutex
	nodes     []*node.Node
	engine    *scenario.Engine
	wsClients map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しい管理サーバーを作成する
func NewServer(addr string, eventBus *events.Bus) *Server {
	return &Server{
		addr:      addr,
		eventBus:  eventBus,
		wsClients: make(map[*websocket.Conn]bool),
	}
}

// AddNode は統計を公開するノードを登録する
func (s *Server) AddNode(n *node.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, n)
}

// SetEngine は状態を公開するシナリオエンジンを登録する
func (s *Server) SetEngine(e *scenario.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = e
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/nodes/{id}", s.handleNode)
		r.Get("/scenario", s.handleScenario)
		r.Get("/presets", s.handlePresets)
	})

	r.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return r
}

// Start はサーバーを開始し、ctxがキャンセルされるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.forwardEvents(ctx)
	go s.broadcastLoop(ctx)

	logger.Info("", "Admin server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatsResponse は /api/stats のレスポンス
type StatsResponse struct {
	Nodes []node.Stats `json:"nodes"`
}

// nodeList は登録済みノードとシナリオのクラスタのノードを返す
func (s *Server) nodeList() []*node.Node {
	s.mu.RLock()
	nodes := append([]*node.Node(nil), s.nodes...)
	engine := s.engine
	s.mu.RUnlock()

	if engine != nil {
		if c := engine.Cluster(); c != nil {
			nodes = append(nodes, c.Nodes()...)
		}
	}
	return nodes
}

func (s *Server) stats() StatsResponse {
	resp := StatsResponse{Nodes: []node.Stats{}}
	for _, n := range s.nodeList() {
		resp.Nodes = append(resp.Nodes, n.Stats())
	}
	return resp
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.stats())
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, n := range s.nodeList() {
		if n.ID() == id {
			s.writeJSON(w, n.Stats())
			return
		}
	}
	http.Error(w, "node not found", http.StatusNotFound)
}

// ScenarioResponse は /api/scenario のレスポンス
type ScenarioResponse struct {
	Running  bool              `json:"running"`
	Metrics  *metrics.Snapshot `json:"metrics,omitempty"`
	Chaos    *chaos.Stats      `json:"chaos,omitempty"`
	Recovery *recovery.Stats   `json:"recovery,omitempty"`
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()

	if engine == nil {
		http.Error(w, "no scenario", http.StatusNotFound)
		return
	}

	s.writeJSON(w, ScenarioResponse{
		Running:  engine.IsRunning(),
		Metrics:  engine.Metrics(),
		Chaos:    engine.ChaosStats(),
		Recovery: engine.RecoveryStats(),
	})
}

// PresetInfo はプリセット情報
type PresetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
	Nodes       int    `json:"nodes"`
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	presets := make([]PresetInfo, 0)
	for _, name := range scenario.ListPresets() {
		config, _ := scenario.GetPreset(name)
		presets = append(presets, PresetInfo{
			Name:        name,
			Description: config.Description,
			Duration:    config.Duration.String(),
			Nodes:       config.NodeCount,
		})
	}
	s.writeJSON(w, presets)
}

// handleWebSocket はクライアントを登録し、切断まで保持する
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

// ClientCount は接続中のWebSocketクライアント数を返す
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

// Message はWebSocketで配信するメッセージ
type Message struct {
	Type  string         `json:"type"`
	Event *events.Event  `json:"event,omitempty"`
	Stats *StatsResponse `json:"stats,omitempty"`
}

func (s *Server) broadcast(msg Message) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(data))
	}
}

// forwardEvents はイベントバスのイベントをWebSocketへ流す
func (s *Server) forwardEvents(ctx context.Context) {
	if s.eventBus == nil {
		return
	}

	sub := s.eventBus.Subscribe()
	defer s.eventBus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			s.broadcast(Message{Type: "event", Event: &e})
		}
	}
}

// broadcastLoop は定期的に統計を配信する
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.ClientCount() == 0 {
				continue
			}
			stats := s.stats()
			s.broadcast(Message{Type: "stats", Stats: &stats})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("", "Failed to encode JSON: %v", err)
	}
}
