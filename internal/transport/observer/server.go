package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"nanitecraft.ai/internal/protocol"
	"nanitecraft.ai/internal/sim/session"
)

const maxStationFilter = 256

// Server streams per-tick station state to loopback observers over WebSocket.
type Server struct {
	sess *session.Session
	log  *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(s *session.Session, logger *log.Logger) *Server {
	return &Server{
		sess: s,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only, see isLoopbackRemote
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.sess.Bootstrap())
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		closeWith := func(code int, text string) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
		}

		// The first frame must be a valid SUBSCRIBE.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if base, err := protocol.DecodeBase(msg); err != nil || base.Type != protocol.TypeSubscribe {
			closeWith(websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}
		sub, err := protocol.DecodeSubscribe(msg)
		if err != nil {
			if s.log != nil {
				s.log.Printf("observer from %s: %v", r.RemoteAddr, err)
			}
			closeWith(websocket.ClosePolicyViolation, "invalid SUBSCRIBE")
			return
		}
		if len(sub.Stations) > maxStationFilter {
			closeWith(websocket.ClosePolicyViolation, "too many stations")
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		tickOut := make(chan []byte, 8)
		join := session.ObserverJoinRequest{
			SessionID:      sid,
			TickOut:        tickOut,
			Stations:       sub.Stations,
			IncludeEffects: sub.IncludeEffects,
		}
		select {
		case s.sess.ObserverJoin() <- join:
		case <-time.After(time.Second):
			closeWith(websocket.CloseTryAgainLater, "server busy")
			return
		}
		if s.log != nil {
			s.log.Printf("observer %s joined from %s stations=%v", sid, r.RemoteAddr, sub.Stations)
		}
		defer func() {
			select {
			case s.sess.ObserverLeave() <- sid:
			case <-time.After(time.Second):
			}
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-tickOut:
					if !ok {
						cancel()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Later SUBSCRIBE frames replace the filter; other message types are ignored.
		for ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if base, err := protocol.DecodeBase(msg); err != nil || base.Type != protocol.TypeSubscribe {
				continue
			}
			sub, err := protocol.DecodeSubscribe(msg)
			if err != nil || len(sub.Stations) > maxStationFilter {
				if err != nil && s.log != nil {
					s.log.Printf("observer %s: %v", sid, err)
				}
				continue
			}
			req := session.ObserverSubscribeRequest{
				SessionID:      sid,
				Stations:       sub.Stations,
				IncludeEffects: sub.IncludeEffects,
			}
			select {
			case s.sess.ObserverSubscribe() <- req:
			default:
			}
		}

		cancel()
		closeWith(websocket.CloseNormalClosure, "bye")
		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
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
