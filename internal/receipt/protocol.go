package receipt

// applyLocked runs one validated command against a participant and the ledger
// as a unit. By the time this runs the command can no longer fail: capacity
// overshoot is clamped, repeated Finish is a no-op.
func (sess *BillSession) applyLocked(p *ParticipantSession, cmd Command) {
	switch cmd.Kind {
	case CmdSelectItem:
		// Toggling the focused item collapses it; focusing a new one
		// implicitly collapses the previous one. Claim values stay
		// committed either way.
		if p.FocusedItemID == cmd.ItemID {
			p.FocusedItemID = NoFocus
		} else {
			p.FocusedItemID = cmd.ItemID
		}

	case CmdIncrement:
		c := p.claim(cmd.ItemID)
		actual := sess.Ledger.TryAdjust(cmd.ItemID, sess.stepFor(c))
		c.Quantity = c.Quantity.Add(actual)

	case CmdDecrement:
		c := p.claim(cmd.ItemID)
		// A participant can only release what they hold themselves, even
		// when the ledger still has room above zero.
		step := sess.stepFor(c)
		if step.Cmp(c.Quantity) > 0 {
			step = c.Quantity
		}
		actual := sess.Ledger.TryAdjust(cmd.ItemID, step.Neg())
		c.Quantity = c.Quantity.Add(actual)

	case CmdToggleStep:
		c := p.claim(cmd.ItemID)
		if c.Mode == StepDefault {
			c.Mode = StepCustom
		} else {
			c.Mode = StepDefault
		}

	case CmdFinish:
		if !p.Finished {
			p.Finished = true
			sess.finishedCount++
			if sess.finishedCount == sess.TotalVoters {
				sess.settlement = settle(sess)
				sess.State = Settled
			}
		}
	}
}

func (sess *BillSession) stepFor(c *Claim) Quantity {
	if c.Mode == StepCustom {
		return sess.CustomStep
	}
	return QuantityFromInt(1)
}

func (sess *BillSession) viewLocked(p *ParticipantSession) ParticipantView {
	v := ParticipantView{
		SessionID:     sess.ID,
		ParticipantID: p.ParticipantID,
		State:         sess.State,
		FocusedItemID: p.FocusedItemID,
		Finished:      p.Finished,
		Items:         make([]ItemView, 0, sess.Catalog.Len()),
	}
	for _, item := range sess.Catalog.Items() {
		iv := ItemView{
			Item:      item,
			Own:       QuantityFromInt(0),
			Claimed:   sess.Ledger.Claimed(item.ID),
			Remaining: sess.Ledger.Remaining(item.ID),
			Focused:   p.FocusedItemID == item.ID,
		}
		if c, ok := p.Claims[item.ID]; ok {
			iv.Own = c.Quantity
			iv.Mode = c.Mode
		}
		v.Items = append(v.Items, iv)
	}
	return v
}
