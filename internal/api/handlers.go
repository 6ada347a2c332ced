package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/susu3304/recibot/internal/db"
	"github.com/susu3304/recibot/internal/receipt"
)

// itemJSON is one catalog line in API responses. Quantities are exact
// rationals rendered as "num/den" strings, with a rounded display value
// alongside.
type itemJSON struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Own       string `json:"own"`
	Claimed   string `json:"claimed"`
	Remaining string `json:"remaining"`
	Focused   bool   `json:"focused"`
}

type viewJSON struct {
	SessionID string     `json:"session_id"`
	State     string     `json:"state"`
	Finished  bool       `json:"finished"`
	Items     []itemJSON `json:"items"`
}

type debtJSON struct {
	ParticipantID string `json:"participant_id"`
	Amount        string `json:"amount"`
}

type settlementJSON struct {
	SessionID string     `json:"session_id"`
	Settled   bool       `json:"settled"`
	Debts     []debtJSON `json:"debts,omitempty"`
	Total     string     `json:"total,omitempty"`
}

// handleReceiptView returns the authenticated user's view of one session.
func (a *API) handleReceiptView(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value("claims").(*Claims)
	sessionID := mux.Vars(r)["session_id"]

	view, err := a.svc.View(sessionID, claims.UserID)
	if err != nil {
		writeReceiptError(w, err)
		return
	}

	out := viewJSON{
		SessionID: view.SessionID,
		State:     view.State.String(),
		Finished:  view.Finished,
		Items:     make([]itemJSON, 0, len(view.Items)),
	}
	for _, iv := range view.Items {
		out.Items = append(out.Items, itemJSON{
			ID:        iv.Item.ID,
			Name:      iv.Item.Name,
			UnitPrice: iv.Item.UnitPrice.Display(),
			Own:       iv.Own.String(),
			Claimed:   iv.Claimed.String(),
			Remaining: iv.Remaining.String(),
			Focused:   iv.Focused,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// handleReceiptSettlement returns the final debts once the session settled.
func (a *API) handleReceiptSettlement(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	res, ok, err := a.svc.Settlement(sessionID)
	if err != nil {
		writeReceiptError(w, err)
		return
	}

	out := settlementJSON{SessionID: sessionID, Settled: ok}
	if ok {
		out.Total = res.Total.Display()
		for _, d := range res.Debts {
			out.Debts = append(out.Debts, debtJSON{
				ParticipantID: d.ParticipantID,
				Amount:        d.Amount.Display(),
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// handleChannelReceipt resolves the session bound to a Discord channel.
func (a *API) handleChannelReceipt(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["channel_id"]

	sessionID, err := a.db.ChannelSession(r.Context(), channelID)
	if err != nil {
		if errors.Is(err, db.ErrSessionNotFound) {
			http.Error(w, "no receipt bound to channel", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to resolve channel", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"session_id": sessionID})
}

func writeReceiptError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, receipt.ErrUnknownSession):
		http.Error(w, "session not found", http.StatusNotFound)
	case errors.Is(err, receipt.ErrUnknownParticipant):
		http.Error(w, "not a participant", http.StatusForbidden)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
