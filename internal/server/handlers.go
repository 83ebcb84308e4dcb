package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"telestrations/internal/config"
	"telestrations/internal/db"
	"telestrations/internal/events"
	"telestrations/internal/gateway"
	"telestrations/internal/rooms"
	"telestrations/internal/wshub"
)

const qrSize = 320

type Server struct {
	Config  config.Config
	Rooms   *rooms.Store
	Hub     *wshub.Hub
	Gateway *gateway.Gateway
	DB      *db.DB // nil if no database configured
	Metrics prometheus.Gatherer

	originPatterns []string
	log            *logrus.Entry
}

func New(cfg config.Config, store *rooms.Store, hub *wshub.Hub, gw *gateway.Gateway, database *db.DB, gatherer prometheus.Gatherer) *Server {
	return &Server{
		Config:         cfg,
		Rooms:          store,
		Hub:            hub,
		Gateway:        gw,
		DB:             database,
		Metrics:        gatherer,
		originPatterns: originPatterns(cfg.AllowedOrigins),
		log:            logrus.WithField("component", "server"),
	}
}

func (s *Server) Routes() http.Handler {
	mux := httprouter.New()
	mux.GET("/ws", s.handleWS)
	mux.GET("/allUsernames", s.handleAllUsernames)
	mux.GET("/getUsernamesInARoom", s.handleUsernamesInRoom)
	mux.GET("/getHost", s.handleHost)
	mux.GET("/rooms/:roomId/qr", s.handleQR)
	mux.GET("/rooms/:roomId/history", s.handleHistory)
	mux.GET("/health", s.handleHealth)
	mux.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Metrics, promhttp.HandlerOpts{}))

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		s.log.WithField("path", r.URL.Path).Errorf("Handler panic: %v", v)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}

	return withCORS(s.Config.AllowedOrigins, mux)
}

// handleWS upgrades the request and pumps frames between the socket and the
// gateway until the peer goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to upgrade connection")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit(s.Config.MaxDrawingBytes))

	client := wshub.NewClient(uuid.NewString(), conn)
	s.Gateway.Register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go client.WritePump(ctx)

	err = client.ReadPump(ctx, func(msg events.ClientMessage) {
		s.Gateway.Submit(client.ID, msg)
	})
	s.log.WithFields(logrus.Fields{
		"conn_id": client.ID,
		"status":  websocket.CloseStatus(err),
	}).Debug("WebSocket read loop ended")

	s.Gateway.Disconnect(client.ID)
}

func (s *Server) handleAllUsernames(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string][]string{"allUsernames": s.Rooms.AllUsernames()})
}

func (s *Server) handleUsernamesInRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	code := rooms.NormalizeCode(r.URL.Query().Get("roomId"))
	writeJSON(w, http.StatusOK, map[string][]string{"usernames": s.Rooms.UsernamesInRoom(code)})
}

type hostResponse struct {
	HostID string `json:"hostId,omitempty"`
}

func (s *Server) handleHost(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	code := rooms.NormalizeCode(r.URL.Query().Get("roomId"))
	host, _ := s.Rooms.HostOf(code)
	writeJSON(w, http.StatusOK, hostResponse{HostID: host})
}

// handleQR renders a PNG QR code that opens the join page for a live room.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := rooms.NormalizeCode(ps.ByName("roomId"))
	if s.Rooms.Get(code) == nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(s.joinURL(r, code), qrcode.Medium, qrSize)
	if err != nil {
		s.log.WithError(err).WithField("room_id", code).Error("QR generation failed")
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) joinURL(r *http.Request, code string) string {
	base := s.Config.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?room=" + url.QueryEscape(code)
}

type historyEvent struct {
	Kind       string    `json:"kind"`
	ConnID     string    `json:"connId,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Index      *int      `json:"index,omitempty"`
	Bytes      *int      `json:"bytes,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type historyResponse struct {
	RoomID   string         `json:"roomId"`
	Live     bool           `json:"live"`
	Members  int            `json:"members"`
	Drawings int            `json:"drawings"`
	Events   []historyEvent `json:"events"`
}

// handleHistory returns the journal for a room, live or closed. Without a
// database there is no journal to read.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if s.DB == nil {
		http.Error(w, "history not available", http.StatusNotFound)
		return
	}
	code := rooms.NormalizeCode(ps.ByName("roomId"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	history, err := s.DB.RoomHistory(ctx, code)
	if err != nil {
		s.log.WithError(err).WithField("room_id", code).Error("Room history query failed")
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}

	resp := historyResponse{RoomID: code, Events: make([]historyEvent, 0, len(history))}
	if room := s.Rooms.Get(code); room != nil {
		resp.Live = true
		resp.Members = room.Len()
		resp.Drawings = room.DrawingCount()
	}
	if !resp.Live && len(history) == 0 {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	for _, ev := range history {
		resp.Events = append(resp.Events, historyEvent{
			Kind:       ev.Kind,
			ConnID:     ev.ConnID,
			Detail:     ev.Detail,
			Index:      ev.Index,
			Bytes:      ev.Bytes,
			OccurredAt: ev.OccurredAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp := healthResponse{
		Status:      "ok",
		Rooms:       s.Rooms.Len(),
		Connections: s.Hub.Count(),
	}
	if s.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.DB.Ping(ctx); err != nil {
			resp.Status = "db_error"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to write JSON response")
	}
}

// readLimit is the largest frame a client may send: a base64 data URL of the
// biggest accepted drawing plus room for the envelope.
func readLimit(maxDrawingBytes int) int64 {
	if maxDrawingBytes <= 0 {
		maxDrawingBytes = config.DefaultMaxDrawingBytes
	}
	return int64(maxDrawingBytes)*4/3 + 4096
}
