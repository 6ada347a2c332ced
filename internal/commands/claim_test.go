package commands

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/recibot/internal/receipt"
)

func sessionWithItems(t *testing.T, n int) (*receipt.Service, string) {
	t.Helper()
	raw := make([]receipt.RawItem, 0, n)
	for i := 0; i < n; i++ {
		// Distinct names and prices so nothing merges away.
		raw = append(raw, receipt.RawItem{
			Name:      fmt.Sprintf("позиция%d", i),
			UnitPrice: receipt.MoneyFromInt(int64(100 + i)),
			Quantity:  1,
		})
	}
	svc := receipt.NewService(nil)
	id, err := svc.CreateSession(context.Background(), receipt.Normalize(raw), 2)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return svc, id
}

func selectMenus(rows []discordgo.MessageComponent) []discordgo.SelectMenu {
	var menus []discordgo.SelectMenu
	for _, row := range rows {
		ar, ok := row.(discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range ar.Components {
			if menu, ok := c.(discordgo.SelectMenu); ok {
				menus = append(menus, menu)
			}
		}
	}
	return menus
}

func TestClaimComponentsSingleMenu(t *testing.T) {
	svc, id := sessionWithItems(t, 8)
	rows := claimComponents(svc, id)

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want menu row + button row", len(rows))
	}
	menus := selectMenus(rows)
	if len(menus) != 1 {
		t.Fatalf("got %d select menus, want 1", len(menus))
	}
	if len(menus[0].Options) != 8 {
		t.Errorf("got %d options, want 8", len(menus[0].Options))
	}
}

// Discord rejects select menus with more than 25 options, so a full catalog
// has to be split over several menus.
func TestClaimComponentsSplitsLargeCatalog(t *testing.T) {
	svc, id := sessionWithItems(t, receipt.MaxCatalogItems)
	rows := claimComponents(svc, id)

	menus := selectMenus(rows)
	if len(menus) != 2 {
		t.Fatalf("got %d select menus, want 2", len(menus))
	}
	seen := make(map[string]bool)
	total := 0
	for _, menu := range menus {
		if len(menu.Options) > 25 {
			t.Errorf("menu %s has %d options, limit is 25", menu.CustomID, len(menu.Options))
		}
		if seen[menu.CustomID] {
			t.Errorf("duplicate custom ID %s", menu.CustomID)
		}
		seen[menu.CustomID] = true
		total += len(menu.Options)
	}
	if total != receipt.MaxCatalogItems {
		t.Errorf("menus cover %d items, want %d", total, receipt.MaxCatalogItems)
	}

	// Message payloads top out at five rows; menus plus the button row must fit.
	if len(rows) > 5 {
		t.Errorf("got %d rows, Discord allows 5", len(rows))
	}
}

// A selection from any chunked menu still routes as an item selection.
func TestParseClaimCustomID(t *testing.T) {
	tests := []struct {
		customID    string
		wantAction  string
		wantSession string
		wantOK      bool
	}{
		{"claim:item0:abc123", "item0", "abc123", true},
		{"claim:item1:abc123", "item1", "abc123", true},
		{"claim:inc:abc123", "inc", "abc123", true},
		{"claim:fin:abc123", "fin", "abc123", true},
		{"rcpt:ok", "", "", false},
		{"claim:inc", "", "", false},
	}
	for _, tt := range tests {
		action, session, ok := parseClaimCustomID(tt.customID)
		if action != tt.wantAction || session != tt.wantSession || ok != tt.wantOK {
			t.Errorf("parseClaimCustomID(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.customID, action, session, ok, tt.wantAction, tt.wantSession, tt.wantOK)
		}
	}
}

// Selecting an item from the second menu chunk focuses it like any other.
func TestSelectFromSecondChunk(t *testing.T) {
	svc, id := sessionWithItems(t, receipt.MaxCatalogItems)

	if _, err := svc.Apply(context.Background(), id, "u1",
		receipt.Command{Kind: receipt.CmdSelectItem, ItemID: 27}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	view, err := svc.View(id, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if view.FocusedItemID != 27 {
		t.Errorf("focus = %d, want 27", view.FocusedItemID)
	}
}
