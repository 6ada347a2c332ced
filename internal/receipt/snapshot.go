package receipt

import (
	"fmt"
	"sync"
)

// Snapshot is the persisted form of a session. Every rational value is stored
// as its exact "num/den" string; floats would drift across save/load cycles.
type Snapshot struct {
	SessionID   string                `json:"session_id"`
	State       string                `json:"state"`
	TotalVoters int                   `json:"total_voters"`
	CustomStep  string                `json:"custom_step,omitempty"`
	Version     int64                 `json:"version"`
	Items       []ItemSnapshot        `json:"items"`
	Claimed     []string              `json:"claimed,omitempty"`
	Voters      []ParticipantSnapshot `json:"voters,omitempty"`
	Settlement  *SettlementSnapshot   `json:"settlement,omitempty"`
}

type ItemSnapshot struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	UnitPrice     string `json:"unit_price"`
	TotalQuantity int    `json:"total_quantity"`
}

type ClaimSnapshot struct {
	ItemID   int    `json:"item_id"`
	Quantity string `json:"quantity"`
	Mode     string `json:"mode"`
}

type ParticipantSnapshot struct {
	ParticipantID string          `json:"participant_id"`
	FocusedItemID int             `json:"focused_item_id"`
	Finished      bool            `json:"finished"`
	Claims        []ClaimSnapshot `json:"claims,omitempty"`
}

type DebtSnapshot struct {
	ParticipantID string `json:"participant_id"`
	Amount        string `json:"amount"`
}

type SettlementSnapshot struct {
	Debts []DebtSnapshot `json:"debts"`
	Total string         `json:"total"`
}

func (sess *BillSession) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		SessionID:   sess.ID,
		State:       sess.State.String(),
		TotalVoters: sess.TotalVoters,
		Version:     sess.version,
	}
	if sess.State != AwaitingVoters {
		snap.CustomStep = sess.CustomStep.String()
	}
	for _, item := range sess.Catalog.Items() {
		snap.Items = append(snap.Items, ItemSnapshot{
			ID:            item.ID,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice.String(),
			TotalQuantity: item.TotalQuantity,
		})
		if sess.Ledger != nil {
			snap.Claimed = append(snap.Claimed, sess.Ledger.Claimed(item.ID).String())
		}
	}
	for id, p := range sess.Participants {
		ps := ParticipantSnapshot{
			ParticipantID: id,
			FocusedItemID: p.FocusedItemID,
			Finished:      p.Finished,
		}
		for itemID, c := range p.Claims {
			ps.Claims = append(ps.Claims, ClaimSnapshot{
				ItemID:   itemID,
				Quantity: c.Quantity.String(),
				Mode:     c.Mode.String(),
			})
		}
		snap.Voters = append(snap.Voters, ps)
	}
	if sess.settlement != nil {
		st := &SettlementSnapshot{Total: sess.settlement.Total.String()}
		for _, d := range sess.settlement.Debts {
			st.Debts = append(st.Debts, DebtSnapshot{
				ParticipantID: d.ParticipantID,
				Amount:        d.Amount.String(),
			})
		}
		snap.Settlement = st
	}
	return snap
}

// restoreLocked rolls the session back to a previous snapshot, keeping the
// same mutex. Used when persistence rejects a mutation.
func (sess *BillSession) restoreLocked(snap *Snapshot) {
	restored, err := restoreSession(snap)
	if err != nil {
		// The snapshot came from snapshotLocked moments ago; a decode
		// failure here means corrupted memory, not bad input.
		panic(fmt.Sprintf("receipt: rollback failed: %v", err))
	}
	restored.mu = sync.Mutex{}
	sess.Catalog = restored.Catalog
	sess.Ledger = restored.Ledger
	sess.TotalVoters = restored.TotalVoters
	sess.CustomStep = restored.CustomStep
	sess.Participants = restored.Participants
	sess.State = restored.State
	sess.finishedCount = restored.finishedCount
	sess.settlement = restored.settlement
	sess.version = restored.version
}

func restoreSession(snap *Snapshot) (*BillSession, error) {
	items := make([]Item, 0, len(snap.Items))
	for _, is := range snap.Items {
		price, err := ParseMoney(is.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", is.ID, err)
		}
		items = append(items, Item{
			ID:            is.ID,
			Name:          is.Name,
			UnitPrice:     price,
			TotalQuantity: is.TotalQuantity,
		})
	}
	sess := &BillSession{
		ID:           snap.SessionID,
		Catalog:      Catalog{items: items},
		TotalVoters:  snap.TotalVoters,
		Participants: make(map[string]*ParticipantSession),
		version:      snap.Version,
	}

	switch snap.State {
	case AwaitingVoters.String():
		sess.State = AwaitingVoters
	case Allocating.String():
		sess.State = Allocating
	case Settled.String():
		sess.State = Settled
	default:
		return nil, fmt.Errorf("unknown state %q", snap.State)
	}

	if sess.State != AwaitingVoters {
		step, err := ParseQuantity(snap.CustomStep)
		if err != nil {
			return nil, fmt.Errorf("custom step: %w", err)
		}
		sess.CustomStep = step
		sess.Ledger = NewLedger(sess.Catalog)
		if len(snap.Claimed) > len(sess.Ledger.claimed) {
			return nil, fmt.Errorf("%d claimed entries for %d items", len(snap.Claimed), len(sess.Ledger.claimed))
		}
		for i, claimed := range snap.Claimed {
			q, err := ParseQuantity(claimed)
			if err != nil {
				return nil, fmt.Errorf("claimed[%d]: %w", i, err)
			}
			sess.Ledger.claimed[i] = q
		}
	}

	for _, ps := range snap.Voters {
		p := newParticipantSession(ps.ParticipantID)
		p.FocusedItemID = ps.FocusedItemID
		p.Finished = ps.Finished
		if ps.Finished {
			sess.finishedCount++
		}
		for _, cs := range ps.Claims {
			q, err := ParseQuantity(cs.Quantity)
			if err != nil {
				return nil, fmt.Errorf("claim %s/%d: %w", ps.ParticipantID, cs.ItemID, err)
			}
			c := &Claim{Quantity: q}
			if cs.Mode == StepCustom.String() {
				c.Mode = StepCustom
			}
			p.Claims[cs.ItemID] = c
		}
		sess.Participants[ps.ParticipantID] = p
	}

	if snap.Settlement != nil {
		total, err := ParseMoney(snap.Settlement.Total)
		if err != nil {
			return nil, fmt.Errorf("settlement total: %w", err)
		}
		res := &SettlementResult{SessionID: snap.SessionID, Total: total}
		for _, ds := range snap.Settlement.Debts {
			amount, err := ParseMoney(ds.Amount)
			if err != nil {
				return nil, fmt.Errorf("debt %s: %w", ds.ParticipantID, err)
			}
			res.Debts = append(res.Debts, Debt{ParticipantID: ds.ParticipantID, Amount: amount})
		}
		sess.settlement = res
	}
	return sess, nil
}
