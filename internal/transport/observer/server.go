package observer

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"containerflow.ai/internal/protocol"
	"containerflow.ai/internal/sim/flow"
	"containerflow.ai/internal/sim/locator"
	"containerflow.ai/internal/sim/world"
)

const execTimeout = 2 * time.Second

// LocatorDefaults supplies the scan options and result count used when a
// request does not override them.
type LocatorDefaults func() (opts locator.Options, top int)

type Options struct {
	Log         *zap.Logger
	Locator     LocatorDefaults
	AllowRemote bool
}

// Server exposes agent control, the container locator and a websocket flow
// event stream. Every world access is applied on the world goroutine.
type Server struct {
	world   *world.World
	log     *zap.Logger
	locator LocatorDefaults
	remote  bool

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Locator == nil {
		opts.Locator = func() (locator.Options, int) { return locator.Options{MaxDistance: 5000}, 10 }
	}
	return &Server{
		world:   w,
		log:     opts.Log,
		locator: opts.Locator,
		remote:  opts.AllowRemote,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/containers", s.guard(s.handleContainers))
	mux.HandleFunc("GET /v1/agents", s.guard(s.handleAgents))
	mux.HandleFunc("GET /v1/agents/{id}", s.guard(s.handleAgent))
	mux.HandleFunc("POST /v1/agents/{id}/collect", s.guard(s.handleToggle((*world.World).ToggleCollect)))
	mux.HandleFunc("POST /v1/agents/{id}/forward", s.guard(s.handleToggle((*world.World).ToggleForward)))
	mux.HandleFunc("POST /v1/agents/{id}/target", s.guard(s.handleTarget))
	mux.HandleFunc("GET /v1/ws", s.guard(s.handleWS))
	return mux
}

func (s *Server) guard(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.remote && !isLoopbackRemote(r.RemoteAddr) {
			writeError(rw, http.StatusForbidden, protocol.ErrBadRequest, "forbidden")
			return
		}
		h(rw, r)
	}
}

func (s *Server) exec(r *http.Request, fn func(w *world.World)) error {
	ctx, cancel := context.WithTimeout(r.Context(), execTimeout)
	defer cancel()
	return s.world.Exec(ctx, fn)
}

func (s *Server) handleContainers(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, top := s.locator()
	var (
		obs locator.Observer
		err error
	)
	parse := func(key string, dst *float64) {
		if err != nil || q.Get(key) == "" {
			return
		}
		*dst, err = strconv.ParseFloat(q.Get(key), 64)
	}
	parse("x", &obs.Pos.X)
	parse("y", &obs.Pos.Y)
	parse("z", &obs.Pos.Z)
	parse("yaw", &obs.Yaw)
	parse("max", &opts.MaxDistance)
	if err == nil && q.Get("top") != "" {
		top, err = strconv.Atoi(q.Get("top"))
	}
	if err == nil && q.Get("golden") != "" {
		opts.GoldenOnly, err = strconv.ParseBool(q.Get("golden"))
	}
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrInvalidQuery, err.Error())
		return
	}

	var (
		results []locator.Result
		stats   locator.Stats
		resp    protocol.LocatorResponse
	)
	err = s.exec(r, func(w *world.World) {
		results, stats = locator.Scan(w.Entities(), obs, opts)
		resp.Tick = w.CurrentTick()
		if top > 0 && len(results) > top {
			results = results[:top]
		}
		resp.Containers = make([]protocol.LocatedContainer, 0, len(results))
		for _, res := range results {
			lc := protocol.LocatedContainer{
				ID:        res.ID,
				Group:     res.Group,
				Pos:       res.Pos.ToArray(),
				Distance:  res.Distance,
				Golden:    res.Golden,
				Direction: res.Direction,
			}
			if e, ok := w.Entity(res.ID); ok {
				lc.Name = e.Name()
			}
			resp.Containers = append(resp.Containers, lc)
		}
	})
	if err != nil {
		s.writeWorldError(rw, err)
		return
	}
	if q.Get("format") == "text" {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = rw.Write([]byte(locator.Format(results, stats, 0)))
		return
	}
	resp.Count = len(resp.Containers)
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleAgents(rw http.ResponseWriter, r *http.Request) {
	out := []protocol.AgentStatus{}
	err := s.exec(r, func(w *world.World) {
		for _, id := range w.AgentIDs() {
			if st, err := w.AgentStatus(id); err == nil {
				out = append(out, st)
			}
		}
	})
	if err != nil {
		s.writeWorldError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, out)
}

func (s *Server) handleAgent(rw http.ResponseWriter, r *http.Request) {
	id, ok := pathID(rw, r)
	if !ok {
		return
	}
	var (
		st     protocol.AgentStatus
		errOut error
	)
	if err := s.exec(r, func(w *world.World) { st, errOut = w.AgentStatus(id) }); err != nil {
		s.writeWorldError(rw, err)
		return
	}
	if errOut != nil {
		s.writeWorldError(rw, errOut)
		return
	}
	writeJSON(rw, http.StatusOK, st)
}

func (s *Server) handleToggle(toggle func(*world.World, int64) (flow.AgentConfig, error)) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		id, ok := pathID(rw, r)
		if !ok {
			return
		}
		s.mutate(rw, r, id, func(w *world.World) error {
			_, err := toggle(w, id)
			return err
		})
	}
}

func (s *Server) handleTarget(rw http.ResponseWriter, r *http.Request) {
	id, ok := pathID(rw, r)
	if !ok {
		return
	}
	var req protocol.SetTargetReq
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4096)).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad json body")
		return
	}
	s.mutate(rw, r, id, func(w *world.World) error {
		_, err := w.SetTarget(id, req.TargetID)
		return err
	})
}

// mutate applies fn and answers with the agent's resulting status.
func (s *Server) mutate(rw http.ResponseWriter, r *http.Request, id int64, fn func(w *world.World) error) {
	var (
		st     protocol.AgentStatus
		errOut error
	)
	err := s.exec(r, func(w *world.World) {
		if errOut = fn(w); errOut != nil {
			return
		}
		st, errOut = w.AgentStatus(id)
	})
	if err == nil {
		err = errOut
	}
	if err != nil {
		s.writeWorldError(rw, err)
		return
	}
	s.log.Info("agent updated",
		zap.Int64("container_id", id),
		zap.Bool("collect", st.Collect),
		zap.Bool("forward", st.Forward),
	)
	writeJSON(rw, http.StatusOK, st)
}

func (s *Server) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Handshake: must send SUBSCRIBE first.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	sub, ok, err := readSubscribe(conn)
	if err != nil || !ok {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
		return
	}

	sid := uuid.NewString()
	out := make(chan []byte, 256)
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sid,
	}
	if err := s.exec(r, func(w *world.World) {
		w.AddObserver(sid, out, sub.Containers)
		welcome.WorldID = w.ID()
		welcome.Tick = w.CurrentTick()
	}); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
		return
	}
	log := s.log.With(zap.String("session_id", sid))
	log.Info("observer joined", zap.Int64s("containers", sub.Containers))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
		defer cancel()
		// World loop may already be stopping; nothing else to do then.
		_ = s.world.Exec(ctx, func(w *world.World) { w.RemoveObserver(sid) })
		log.Info("observer left")
	}()

	wb, _ := json.Marshal(welcome)
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, wb); err != nil {
		return
	}

	// Writer goroutine.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for b := range out {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				break
			}
		}
		// Stream ended (session removed or world closed): unblock the reader.
		_ = conn.Close()
	}()

	// Reader loop: allow SUBSCRIBE updates.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		next, ok, err := readSubscribe(conn)
		if err != nil {
			break
		}
		if !ok {
			continue
		}
		containers := next.Containers
		if err := s.exec(r, func(w *world.World) { w.AddObserver(sid, out, containers) }); err != nil {
			break
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

	// Best-effort wait for the writer to stop so it doesn't outlive conn.
	select {
	case <-writeDone:
	case <-time.After(500 * time.Millisecond):
	}
}

// readSubscribe reads one message. ok is false for anything other than a
// well-formed SUBSCRIBE of the current protocol version.
func readSubscribe(conn *websocket.Conn) (protocol.SubscribeMsg, bool, error) {
	var sub protocol.SubscribeMsg
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return sub, false, err
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false, nil
	}
	if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
		return sub, false, nil
	}
	return sub, true, nil
}

func pathID(rw http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad container id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeWorldError(rw http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, world.ErrNoAgent):
		writeError(rw, http.StatusNotFound, protocol.ErrNoAgent, err.Error())
	case errors.Is(err, world.ErrStopped):
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrWorldStopped, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrWorldBusy, "world busy")
	case errors.Is(err, context.Canceled):
		// Client went away.
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, "internal error")
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.ErrorMsg{Type: protocol.TypeError, Code: code, Message: msg})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
