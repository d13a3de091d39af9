package realtime

import (
	"errors"
	"io"
	"log"
	"net/http"

	"parrot/internal/channel"
	"parrot/internal/protocol"
	"parrot/internal/session"

	"github.com/sugawarayuuta/sonnet"
)

type enqueueResponse struct {
	Accepted int  `json:"accepted"`
	Short    bool `json:"short"`
}

type resetResponse struct {
	Status string `json:"status"`
}

type statusResponse struct {
	Channel channel.Stats `json:"channel"`
	Session session.Info  `json:"session"`
}

// handleFifo enqueues the raw request body as one message.
func (s *Server) handleFifo(w http.ResponseWriter, r *http.Request) {
	capacity := s.ch.Stats().Capacity

	// Anything longer than the ring can never fit; read one extra byte to
	// detect that without buffering an unbounded body.
	data, err := io.ReadAll(io.LimitReader(r.Body, int64(capacity)+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidMessage, "read body: "+err.Error())
		return
	}
	if len(data) > capacity {
		log.Printf("realtime: not enough space left on fifo (message exceeds %d bytes)", capacity)
		writeError(w, http.StatusInsufficientStorage, protocol.ErrInsufficientSpace, channel.ErrInsufficientSpace.Error())
		return
	}

	n, err := s.ch.Enqueue(data)
	switch {
	case errors.Is(err, channel.ErrInsufficientSpace):
		writeError(w, http.StatusInsufficientStorage, protocol.ErrInsufficientSpace, err.Error())
		return
	case err != nil && !channel.IsWarning(err):
		writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}

	s.debugf("fifo: accepted %d of %d bytes", n, len(data))
	writeJSON(w, http.StatusOK, enqueueResponse{Accepted: n, Short: channel.IsWarning(err)})
}

// handleReset empties the channel. The body is ignored.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)
	s.ch.Reset()
	s.debugf("reset")

	writeJSON(w, http.StatusOK, resetResponse{Status: "reset"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Channel: s.ch.Stats(),
		Session: s.sess.Info(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := sonnet.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.ErrorPayload{Code: code, Message: message})
}
