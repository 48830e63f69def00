package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/alejoacosta74/cardbatch/internal/card"
	"github.com/alejoacosta74/cardbatch/internal/coordinator"
	"github.com/alejoacosta74/cardbatch/internal/metrics"
	"github.com/sirupsen/logrus"
)

// RegisterRequest is the body of POST /api/cards.
type RegisterRequest struct {
	HolderName string `json:"holderName"`
	Number     string `json:"number"`
	Brand      string `json:"brand"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	metrics.Snapshot
	InFlight int `json:"inFlight"`
}

// FlushResponse is the body of POST /api/flush.
type FlushResponse struct {
	Scheduled int `json:"scheduled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.recorder.RegistrationRejected("malformed")
		writeError(w, r, http.StatusBadRequest, errJSONParse, "malformed JSON body: "+err.Error(), nil)
		return
	}

	if fields := req.missingFields(); len(fields) > 0 {
		s.recorder.RegistrationRejected("invalid_card")
		writeError(w, r, http.StatusBadRequest, errValidation, "invalid input", fields)
		return
	}

	brand, err := card.ParseBrand(req.Brand)
	if err != nil {
		s.recorder.RegistrationRejected("unknown_brand")
		writeError(w, r, http.StatusBadRequest, errValidation, "invalid input", map[string]string{
			"brand": "accepted values: VISA, MASTERCARD, AMEX, OTHER",
		})
		return
	}

	c, err := card.New(req.HolderName, req.Number, brand)
	if err != nil {
		s.recorder.RegistrationRejected("invalid_card")
		var fe *card.FieldError
		if errors.As(err, &fe) {
			writeError(w, r, http.StatusBadRequest, errBusinessRule, err.Error(), map[string]string{fe.Field: fe.Reason})
			return
		}
		writeError(w, r, http.StatusBadRequest, errBusinessRule, err.Error(), nil)
		return
	}

	if err := s.registry.Register(c); err != nil {
		switch {
		case errors.Is(err, coordinator.ErrShuttingDown):
			writeError(w, r, http.StatusServiceUnavailable, errUnavailable, err.Error(), nil)
		case errors.Is(err, coordinator.ErrUnknownBrand):
			writeError(w, r, http.StatusBadRequest, errBusinessRule, err.Error(), nil)
		default:
			s.logger.WithError(err).WithField("card_id", c.ID).Error("Failed to register card")
			writeError(w, r, http.StatusInternalServerError, errInternal, "internal error, try again later", nil)
		}
		return
	}

	s.logger.WithFields(logrus.Fields{
		"card_id": c.ID,
		"brand":   c.Brand,
		"number":  c.Masked(),
	}).Debug("Card accepted")
	writeJSON(w, http.StatusCreated, c)
}

// missingFields reports blank required fields keyed by their JSON name.
func (req RegisterRequest) missingFields() map[string]string {
	fields := make(map[string]string)
	if strings.TrimSpace(req.HolderName) == "" {
		fields["holderName"] = "holder name is required"
	}
	if strings.TrimSpace(req.Number) == "" {
		fields["number"] = "card number is required"
	}
	if strings.TrimSpace(req.Brand) == "" {
		fields["brand"] = "brand is required"
	}
	return fields
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	pending := s.registry.Pending()
	if pending == nil {
		pending = []card.Card{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Snapshot: s.recorder.Snapshot(),
		InFlight: s.registry.InFlight(),
	})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	n := s.registry.FlushAll()
	s.logger.WithField("scheduled", n).Info("Manual flush requested")
	writeJSON(w, http.StatusAccepted, FlushResponse{Scheduled: n})
}
