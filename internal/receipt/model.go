package receipt

// StepMode selects how far one Increment/Decrement moves a claim.
type StepMode int

const (
	// StepDefault moves by one whole unit.
	StepDefault StepMode = iota
	// StepCustom moves by 1/totalVoters of a unit.
	StepCustom
)

func (m StepMode) String() string {
	if m == StepCustom {
		return "custom"
	}
	return "default"
}

// State is the bill session lifecycle. Settled is terminal.
type State int

const (
	// AwaitingVoters: catalog known, voter count not yet entered.
	AwaitingVoters State = iota
	// Allocating: participants are claiming items.
	Allocating
	// Settled: every participant finished; debts are computed.
	Settled
)

func (s State) String() string {
	switch s {
	case AwaitingVoters:
		return "awaiting_voters"
	case Allocating:
		return "allocating"
	case Settled:
		return "settled"
	}
	return "unknown"
}

// NoFocus marks a participant with no expanded item.
const NoFocus = -1

// Claim is one participant's stake in one item.
type Claim struct {
	Quantity Quantity
	Mode     StepMode
}

// ParticipantSession is one participant's view of the bill: claims, the single
// focused item, and the finished flag. Derived state only; the ledger owns the
// aggregate.
type ParticipantSession struct {
	ParticipantID string
	FocusedItemID int
	Claims        map[int]*Claim
	Finished      bool
}

func newParticipantSession(id string) *ParticipantSession {
	return &ParticipantSession{
		ParticipantID: id,
		FocusedItemID: NoFocus,
		Claims:        make(map[int]*Claim),
	}
}

func (p *ParticipantSession) claim(itemID int) *Claim {
	c, ok := p.Claims[itemID]
	if !ok {
		c = &Claim{Quantity: QuantityFromInt(0)}
		p.Claims[itemID] = c
	}
	return c
}

// CommandKind enumerates the claim protocol commands.
type CommandKind int

const (
	CmdSelectItem CommandKind = iota
	CmdIncrement
	CmdDecrement
	CmdToggleStep
	CmdFinish
)

// Command is one claim adjustment issued by a participant. ItemID is ignored
// for CmdFinish.
type Command struct {
	Kind   CommandKind
	ItemID int
}

// ItemView is one catalog line as seen by a participant after a command.
type ItemView struct {
	Item      Item
	Own       Quantity
	Claimed   Quantity
	Remaining Quantity
	Mode      StepMode
	Focused   bool
}

// ParticipantView is returned after every command so the transport can refresh
// its UI.
type ParticipantView struct {
	SessionID     string
	ParticipantID string
	State         State
	FocusedItemID int
	Finished      bool
	Items         []ItemView
}

// Debt is the final amount one participant owes.
type Debt struct {
	ParticipantID string
	Amount        Money
}

// SettlementResult is produced exactly once, when the session settles.
type SettlementResult struct {
	SessionID string
	Debts     []Debt
	Total     Money
}
