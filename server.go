package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"i4.energy/across/modemgw/modem"
	"i4.energy/across/modemgw/pdu"
)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger   *slog.Logger
	Modem    *modem.Modem
	upgrader websocket.Upgrader
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sms", s.handleSendSMS)
	mux.HandleFunc("GET /messages", s.handleListMessages)
	mux.HandleFunc("DELETE /messages/{index}", s.handleDeleteMessage)
	mux.HandleFunc("GET /signal", s.handleSignal)
	mux.HandleFunc("GET /device", s.handleDevice)
	mux.HandleFunc("GET /urc", s.handleURCStream)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleSendSMS processes incoming HTTP POST requests to send SMS messages
func (s *Server) handleSendSMS(w http.ResponseWriter, r *http.Request) {
	type SMSRequest struct {
		To      string `json:"to"`
		Message string `json:"message"`
		Flash   bool   `json:"flash,omitempty"`
	}

	var req SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.To == "" || req.Message == "" {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	ref, err := s.Modem.SMS.Send(req.To, req.Message, pdu.SubmitOptions{Flash: req.Flash})
	if err != nil {
		s.Logger.Error("Failed to send SMS", "error", err, "to", req.To)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.Logger.Info("SMS sent successfully", "to", req.To, "reference", ref)
	s.sendJSON(w, map[string]int{"reference": ref})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.Modem.SMS.List(modem.SMSAll)
	if err != nil {
		s.Logger.Error("Failed to list messages", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []modem.SMSMessage{}
	}
	s.sendJSON(w, messages)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.sendError(w, "index must be an integer", http.StatusBadRequest)
		return
	}

	if err := s.Modem.SMS.Delete(index); err != nil {
		s.Logger.Error("Failed to delete message", "error", err, "index", index)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	sq, err := s.Modem.Network.SignalQuality()
	if err != nil {
		s.Logger.Error("Failed to read signal quality", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type SignalResponse struct {
		RSSI  int  `json:"rssi"`
		BER   int  `json:"ber"`
		DBm   *int `json:"dbm"`
		Valid bool `json:"valid"`
	}
	resp := SignalResponse{RSSI: sq.RSSI, BER: sq.BER, Valid: sq.Valid()}
	if dbm, ok := sq.RSSIdBm(); ok {
		resp.DBm = &dbm
	}
	s.sendJSON(w, resp)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	info, err := s.Modem.Device.ModelInfo()
	if err != nil {
		s.Logger.Error("Failed to read model info", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type DeviceResponse struct {
		Manufacturer string `json:"manufacturer"`
		Model        string `json:"model"`
		Revision     string `json:"revision"`
		IMEI         string `json:"imei,omitempty"`
		SIMState     string `json:"sim_state,omitempty"`
	}
	resp := DeviceResponse{
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Revision:     info.Revision,
	}
	if imei, err := s.Modem.Device.IMEI(); err == nil {
		resp.IMEI = imei
	}
	if state, err := s.Modem.Device.SIMState(); err == nil {
		resp.SIMState = string(state)
	}
	s.sendJSON(w, resp)
}

// handleURCStream upgrades to a websocket and forwards every unsolicited
// result code the modem produces until the client goes away.
func (s *Server) handleURCStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Error("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	lines := make(chan string, 64)
	cancel := s.Modem.SubscribeURC(func(line string) {
		select {
		case lines <- line:
		default:
		}
	})
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case line := <-lines:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
