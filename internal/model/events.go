package model

// Event kinds emitted by the pool.
const (
	KindSettlement  = "settlement"
	KindRoundOpened = "round_opened"
	KindSigmaUpdate = "sigma_update"
	KindPurchase    = "purchase"
	KindClaim       = "claim"
)

// KnownKind reports whether kind is an event kind the pool emits.
func KnownKind(kind string) bool {
	switch kind {
	case KindSettlement, KindRoundOpened, KindSigmaUpdate, KindPurchase, KindClaim:
		return true
	}
	return false
}

// Settlement is emitted once per option round resolved against an oracle price.
type Settlement struct {
	Asset         string `json:"asset"`
	Direction     string `json:"direction"`
	Duration      uint64 `json:"duration"`
	Round         uint64 `json:"round"`
	StrikePrice   string `json:"strike_price"`
	SettlePrice   string `json:"settle_price"`
	TotalSold     string `json:"total_sold"`
	TotalProfits  string `json:"total_profits"`
	TotalPremiums string `json:"total_premiums"`
	PremiumShare  string `json:"premium_share"`
	Fee           string `json:"fee"`
}

// RoundOpened is emitted when an option starts a new round.
type RoundOpened struct {
	Duration    uint64 `json:"duration"`
	Round       uint64 `json:"round"`
	StrikePrice string `json:"strike_price"`
	TotalSupply string `json:"total_supply"`
	ExpiryDate  uint64 `json:"expiry_date"`
}

// SigmaUpdate records a sigma transition, periodic or manual.
type SigmaUpdate struct {
	Previous     uint64 `json:"previous"`
	Current      uint64 `json:"current"`
	Rate         uint64 `json:"rate"`
	SoldOptions  string `json:"sold_options"`
	TotalOptions string `json:"total_options"`
	Manual       bool   `json:"manual"`
}

// Purchase records an option buy.
type Purchase struct {
	Buyer       string `json:"buyer"`
	Duration    uint64 `json:"duration"`
	Round       uint64 `json:"round"`
	Amount      string `json:"amount"`
	Premium     string `json:"premium"`
	StrikePrice string `json:"strike_price"`
	Sigma       uint64 `json:"sigma"`
}

// Claim records a premium or profit payout.
type Claim struct {
	Account  string `json:"account"`
	Kind     string `json:"kind"`
	Amount   string `json:"amount"`
	Complete bool   `json:"complete"`
}
