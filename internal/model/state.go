package model

// RoundState is the persisted form of one option round. Amounts are base-10 strings.
type RoundState struct {
	Round           uint64                       `json:"round"`
	ExpiryDate      uint64                       `json:"expiry_date"`
	TotalSupply     string                       `json:"total_supply"`
	StrikePrice     string                       `json:"strike_price"`
	SettlePrice     string                       `json:"settle_price"`
	TotalPremiums   string                       `json:"total_premiums"`
	PremiumShare    string                       `json:"premium_share"`
	PremiumShareSet bool                         `json:"premium_share_set"`
	Balances        map[string]string            `json:"balances,omitempty"`
	Allowances      map[string]map[string]string `json:"allowances,omitempty"`
}

// OptionState is the persisted form of an option and all of its rounds.
type OptionState struct {
	Pool                   string              `json:"pool"`
	Duration               uint64              `json:"duration"`
	CurrentRound           uint64              `json:"current_round"`
	Rounds                 []RoundState        `json:"rounds"`
	SettledPremiumRound    map[string]uint64   `json:"settled_premium_round,omitempty"`
	UnclaimedProfitsRounds map[string][]uint64 `json:"unclaimed_profits_rounds,omitempty"`
}

// ShareState is the persisted pooler share ledger.
type ShareState struct {
	TotalSupply string            `json:"total_supply"`
	Balances    map[string]string `json:"balances,omitempty"`
}

// PoolState is the persisted form of a pool aggregate.
type PoolState struct {
	Address            string            `json:"address"`
	Owner              string            `json:"owner"`
	Asset              string            `json:"asset"`
	Direction          string            `json:"direction"`
	PriceDecimals      uint8             `json:"price_decimals"`
	NumOptions         int               `json:"num_options"`
	Collateral         string            `json:"collateral"`
	UtilizationRate    uint64            `json:"utilization_rate"`
	MaxUtilizationRate uint64            `json:"max_utilization_rate"`
	Sigma              uint64            `json:"sigma"`
	SigmaSoldOptions   string            `json:"sigma_sold_options"`
	SigmaTotalOptions  string            `json:"sigma_total_options"`
	NextSigmaUpdate    uint64            `json:"next_sigma_update"`
	SigmaPeriod        uint64            `json:"sigma_period"`
	PremiumFeeRate     uint64            `json:"premium_fee_rate"`
	FeeReserve         string            `json:"fee_reserve"`
	MaxSettleRounds    uint64            `json:"max_settle_rounds"`
	PremiumBalance     map[string]string `json:"premium_balance,omitempty"`
	ProfitBalance      map[string]string `json:"profit_balance,omitempty"`
	Shares             ShareState        `json:"shares"`
	Options            []*OptionState    `json:"options"`
}
