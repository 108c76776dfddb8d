package ir

import "time"

// ContractType is the social action a contract pledges.
type ContractType string

const (
	ContractLike    ContractType = "like"
	ContractRetweet ContractType = "retweet"
)

// Valid reports whether t is one of the known contract types.
func (t ContractType) Valid() bool {
	return t == ContractLike || t == ContractRetweet
}

// ContractState is the lifecycle state of a contract.
type ContractState string

const (
	ContractAlive ContractState = "alive"
	ContractDead  ContractState = "dead"
)

// CollateralType is the stake backing an agreement.
type CollateralType string

const (
	CollateralCurrency CollateralType = "TSC"
	CollateralLike     CollateralType = "like"
	CollateralRetweet  CollateralType = "retweet"
	CollateralNone     CollateralType = "none"
)

// ContractType maps like/retweet collateral onto the contract it secures.
// The second return value is false for currency and none.
func (c CollateralType) ContractType() (ContractType, bool) {
	switch c {
	case CollateralLike:
		return ContractLike, true
	case CollateralRetweet:
		return ContractRetweet, true
	default:
		return "", false
	}
}

// AgreementState is the lifecycle state of an agreement.
type AgreementState string

const (
	AgreementOpen   AgreementState = "open"
	AgreementClosed AgreementState = "closed"
)

// Ruling is a party's assertion about an agreement.
// The zero value means the party has not voted yet.
type Ruling string

const (
	RulingUnset  Ruling = ""
	RulingUpheld Ruling = "upheld"
	RulingBroken Ruling = "broken"
)

// Consensus is the evaluated ruling state of an agreement.
type Consensus string

const (
	ConsensusWaiting  Consensus = "waiting"
	ConsensusDisputed Consensus = "disputed"
	ConsensusUpheld   Consensus = "upheld"
	ConsensusBroken   Consensus = "broken"
)

// Evaluate combines the two party rulings.
func Evaluate(creator, member Ruling) Consensus {
	if creator == RulingUnset || member == RulingUnset {
		return ConsensusWaiting
	}
	if creator != member {
		return ConsensusDisputed
	}
	if creator == RulingBroken {
		return ConsensusBroken
	}
	return ConsensusUpheld
}

// User is the gateway's view of a social account.
type User struct {
	ID        int64  `json:"id" yaml:"id"`
	Handle    string `json:"handle" yaml:"handle"`
	Name      string `json:"name" yaml:"name"`
	Followers int64  `json:"followers" yaml:"followers"`
}

// Message is an inbound mention as delivered by the messaging gateway.
type Message struct {
	ID        int64     `json:"id" yaml:"id"`
	Author    User      `json:"author" yaml:"author"`
	Text      string    `json:"text" yaml:"text"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	ReplyTo   int64     `json:"reply_to,omitempty" yaml:"reply_to,omitempty"` // Zero when not a reply
	Mentions  []User    `json:"mentions" yaml:"mentions"`
}

// Account is a ledger entry for one user.
type Account struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Handle     string  `json:"handle"`
	Balance    int64   `json:"balance"`
	Reputation int64   `json:"reputation"`
	Contracts  []int64 `json:"contracts"`
	Likes      []int64 `json:"likes"`    // Message ids consumed by like executions
	Retweets   []int64 `json:"retweets"` // Message ids consumed by retweet executions
}

// Contract is a priced pledge to perform Count social actions.
type Contract struct {
	ID          int64         `json:"id"`
	State       ContractState `json:"state"`
	OwnerID     int64         `json:"owner_id"`
	OwnerHandle string        `json:"owner_handle"`
	Type        ContractType  `json:"type"`
	Count       int64         `json:"count"`
	Price       int64         `json:"price"`
	CreatedAt   time.Time     `json:"created_at"`
	ExecutedOn  []int64       `json:"executed_on"`
	Revived     bool          `json:"revived"` // Set once a dormant contract has been activated
}

// Value is the total worth of the remaining executions.
func (c Contract) Value() int64 {
	return c.Count * c.Price
}

// Agreement is a bilateral escrow commitment.
type Agreement struct {
	ID             int64          `json:"id"`
	State          AgreementState `json:"state"`
	CreatorID      int64          `json:"creator_id"`
	CreatorHandle  string         `json:"creator_handle"`
	CreatorRuling  Ruling         `json:"creator_ruling"`
	MemberID       int64          `json:"member_id"`
	MemberHandle   string         `json:"member_handle"`
	MemberRuling   Ruling         `json:"member_ruling"`
	CollateralType CollateralType `json:"collateral_type"`
	Collateral     int64          `json:"collateral"`
	CreatedAt      time.Time      `json:"created_at"`
	Text           string         `json:"text"`
}

// Consensus evaluates the current rulings.
func (a Agreement) Consensus() Consensus {
	return Evaluate(a.CreatorRuling, a.MemberRuling)
}

// Party reports whether accountID is the creator or the member.
func (a Agreement) Party(accountID int64) (creator, member bool) {
	return accountID == a.CreatorID, accountID == a.MemberID
}

// ExecutionTTL is how long an execution record stays valid.
const ExecutionTTL = 24 * time.Hour

// Execution records a batch of contracts called in on one message.
type Execution struct {
	ID          int64     `json:"id"` // Target message id
	RequesterID int64     `json:"requester_id"`
	Budget      int64     `json:"budget"`
	Spent       int64     `json:"spent"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Promises    []int64   `json:"promises"` // Owner ids, one per executed contract
}

// Counters are the global per-collection totals.
type Counters struct {
	Accounts   int64 `json:"num_accounts"`
	Contracts  int64 `json:"num_contracts"`
	Agreements int64 `json:"num_agreements"`
	Executions int64 `json:"num_executions"`
}

// Status is an archived inbound message.
type Status struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Handle     string    `json:"handle"`
	CreatedAt  time.Time `json:"created_at"`
	ParentID   int64     `json:"parent_id,omitempty"`
}

// StatusOf converts a gateway message to its archived form.
func StatusOf(m Message) Status {
	return Status{
		ID:         m.ID,
		Text:       m.Text,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Name,
		Handle:     m.Author.Handle,
		CreatedAt:  m.CreatedAt,
		ParentID:   m.ReplyTo,
	}
}
