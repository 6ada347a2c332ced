package ticket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsQR(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{
			name: "full fiscal qr",
			text: "t=20220315T1830&s=740.00&fn=9960440301234567&i=12345&fp=1234567890&n=1",
			want: true,
		},
		{
			name: "missing fp",
			text: "t=20220315T1830&s=740.00&fn=9960440301234567",
			want: false,
		},
		{
			name: "plain chat message",
			text: "привет",
			want: false,
		},
		{
			name: "empty",
			text: "",
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsQR(tt.text); got != tt.want {
				t.Errorf("IsQR(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestConvertItems(t *testing.T) {
	payload := `[
		{"name": " Пицца Маргарита ", "price": 49900, "quantity": 2},
		{"name": "Кола", "price": 9050, "quantity": 0.4}
	]`
	var raw []rawTicketItem
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatal(err)
	}

	items := convertItems(raw)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Name != "пицца маргарита" {
		t.Errorf("name = %q, want trimmed lowercase", items[0].Name)
	}
	// 49900 kopecks -> exactly 499 rubles.
	if items[0].UnitPrice.String() != "499" {
		t.Errorf("price = %s, want 499", items[0].UnitPrice)
	}
	if items[0].Quantity != 2 {
		t.Errorf("quantity = %d, want 2", items[0].Quantity)
	}
	if items[1].UnitPrice.String() != "181/2" {
		t.Errorf("kopeck price = %s, want 181/2 (90.50)", items[1].UnitPrice)
	}
	// Weighted goods round up to at least one claimable unit.
	if items[1].Quantity != 1 {
		t.Errorf("fractional quantity = %d, want 1", items[1].Quantity)
	}
}

func testReceipt() *ticketReceipt {
	payload := `{
		"user": "ООО Ромашка",
		"userInn": "7707083893 ",
		"totalSum": 58950,
		"dateTime": 1647369000,
		"items": [
			{"name": "ПИЦЦА МАРГ 30СМ", "price": 49900, "quantity": 1, "sum": 49900},
			{"name": "КОЛА 0.5", "price": 9050, "quantity": 1, "sum": 9050}
		]
	}`
	var rcpt ticketReceipt
	if err := json.Unmarshal([]byte(payload), &rcpt); err != nil {
		panic(err)
	}
	return &rcpt
}

func TestCleanNamesSubstitutesLooks(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Write([]byte(`{"result": {"items": [
			{"look": "Пицца Маргарита 30 см"},
			{"look": "Кока-Кола 0.5 л"}
		]}}`))
	}))
	defer srv.Close()

	c := NewClient("", "", "")
	c.nlpURL = srv.URL
	rcpt := testReceipt()
	c.cleanNames(context.Background(), rcpt)

	if rcpt.Items[0].Name != "Пицца Маргарита 30 см" {
		t.Errorf("name = %q, want cleaned look", rcpt.Items[0].Name)
	}
	if rcpt.Items[1].Name != "Кока-Кола 0.5 л" {
		t.Errorf("name = %q, want cleaned look", rcpt.Items[1].Name)
	}

	// The payload carries the receipt metadata the service keys on.
	if got["userInn"] != "7707083893" {
		t.Errorf("payload userInn = %v, want trimmed inn", got["userInn"])
	}
	if got["dateTime"] != "2022-03-15T18:30:00" {
		t.Errorf("payload dateTime = %v, want ISO timestamp", got["dateTime"])
	}
	if items, ok := got["items"].([]interface{}); !ok || len(items) != 2 {
		t.Errorf("payload items = %v, want 2 entries", got["items"])
	}
}

func TestCleanNamesKeepsRawNamesOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "item count mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"result": {"items": [{"look": "Пицца"}]}}`))
			},
		},
		{
			name: "empty result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{}`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient("", "", "")
			c.nlpURL = srv.URL
			rcpt := testReceipt()
			c.cleanNames(context.Background(), rcpt)

			if rcpt.Items[0].Name != "ПИЦЦА МАРГ 30СМ" {
				t.Errorf("name = %q, want untouched raw name", rcpt.Items[0].Name)
			}
		})
	}
}

func TestNLPDateTime(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "unix seconds", raw: "1647369000", want: "2022-03-15T18:30:00"},
		{name: "iso string", raw: `"2022-03-15T18:30:00"`, want: "2022-03-15T18:30:00"},
		{name: "absent", raw: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nlpDateTime(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("nlpDateTime(%s) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
