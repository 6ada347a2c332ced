package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/susu3304/recibot/internal/receipt"
)

func testAPI(t *testing.T) (*API, string) {
	t.Helper()
	svc := receipt.NewService(nil)
	catalog := receipt.Normalize([]receipt.RawItem{
		{Name: "пицца", UnitPrice: receipt.MoneyFromInt(100), Quantity: 4},
		{Name: "кола", UnitPrice: receipt.MoneyFromInt(50), Quantity: 2},
	})
	sessionID, err := svc.CreateSession(context.Background(), catalog, 2)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return &API{svc: svc}, sessionID
}

func authedRequest(target, sessionID, userID string) *http.Request {
	req := httptest.NewRequest("GET", target, nil)
	req = mux.SetURLVars(req, map[string]string{"session_id": sessionID})
	ctx := context.WithValue(req.Context(), "claims", &Claims{UserID: userID})
	return req.WithContext(ctx)
}

func TestHandleReceiptView(t *testing.T) {
	api, sessionID := testAPI(t)

	// A view requires the user to have joined the session first.
	_, err := api.svc.Apply(context.Background(), sessionID, "user1",
		receipt.Command{Kind: receipt.CmdSelectItem, ItemID: 0})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	req := authedRequest("/api/receipts/"+sessionID, sessionID, "user1")
	w := httptest.NewRecorder()
	api.handleReceiptView(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status OK, got %v", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %v", ct)
	}

	var out viewJSON
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out.SessionID != sessionID {
		t.Errorf("Expected session %s, got %s", sessionID, out.SessionID)
	}
	if out.State != "allocating" {
		t.Errorf("Expected state allocating, got %s", out.State)
	}
	if len(out.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(out.Items))
	}
	if !out.Items[0].Focused {
		t.Error("Expected first item to be focused")
	}
}

func TestHandleReceiptViewNotParticipant(t *testing.T) {
	api, sessionID := testAPI(t)

	req := authedRequest("/api/receipts/"+sessionID, sessionID, "stranger")
	w := httptest.NewRecorder()
	api.handleReceiptView(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("Expected status Forbidden, got %v", w.Result().StatusCode)
	}
}

func TestHandleReceiptViewUnknownSession(t *testing.T) {
	api, _ := testAPI(t)

	req := authedRequest("/api/receipts/missing", "missing", "user1")
	w := httptest.NewRecorder()
	api.handleReceiptView(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("Expected status NotFound, got %v", w.Result().StatusCode)
	}
}

func TestHandleReceiptSettlement(t *testing.T) {
	api, sessionID := testAPI(t)
	ctx := context.Background()

	// Not settled yet
	req := authedRequest("/api/receipts/"+sessionID+"/settlement", sessionID, "user1")
	w := httptest.NewRecorder()
	api.handleReceiptSettlement(w, req)

	var out settlementJSON
	if err := json.NewDecoder(w.Result().Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out.Settled {
		t.Error("Expected settled=false before everyone finishes")
	}

	// user1 takes one unit of item 0, both finish
	if _, err := api.svc.Apply(ctx, sessionID, "user1", receipt.Command{Kind: receipt.CmdSelectItem, ItemID: 0}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := api.svc.Apply(ctx, sessionID, "user1", receipt.Command{Kind: receipt.CmdIncrement, ItemID: 0}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := api.svc.Apply(ctx, sessionID, "user1", receipt.Command{Kind: receipt.CmdFinish}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := api.svc.Apply(ctx, sessionID, "user2", receipt.Command{Kind: receipt.CmdFinish}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	w = httptest.NewRecorder()
	api.handleReceiptSettlement(w, authedRequest("/api/receipts/"+sessionID+"/settlement", sessionID, "user1"))

	out = settlementJSON{}
	if err := json.NewDecoder(w.Result().Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !out.Settled {
		t.Fatal("Expected settled=true")
	}
	if out.Total != "100.00" {
		t.Errorf("Expected total 100.00, got %s", out.Total)
	}
	if len(out.Debts) != 2 {
		t.Fatalf("Expected 2 debts, got %d", len(out.Debts))
	}
	if out.Debts[0].ParticipantID != "user1" || out.Debts[0].Amount != "100.00" {
		t.Errorf("Unexpected debt: %+v", out.Debts[0])
	}
	if out.Debts[1].ParticipantID != "user2" || out.Debts[1].Amount != "0.00" {
		t.Errorf("Unexpected debt: %+v", out.Debts[1])
	}
}
