// types/account.go
package types

// Position is the current exposure of a sub-account on one instrument.
// Size is signed: positive long, negative short.
type Position struct {
	Instrument    string `json:"instrument"`
	Size          string `json:"size"`
	AvgEntryPrice string `json:"avg_entry_price"`
	UnrealisedPnl string `json:"unrealised_pnl"`
	RealisedPnl   string `json:"realised_pnl"`
	Margin        string `json:"margin"`
}

// Validate checks the position's decimal strings.
func (p *Position) Validate() error {
	for _, f := range []struct{ name, v string }{
		{"size", p.Size},
		{"avg_entry_price", p.AvgEntryPrice},
		{"unrealised_pnl", p.UnrealisedPnl},
		{"realised_pnl", p.RealisedPnl},
		{"margin", p.Margin},
	} {
		if _, err := checkDecimalString(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

// AccountSummary is the high-level margin and equity state of a sub-account.
type AccountSummary struct {
	SubAccountID      int64      `json:"sub_account_id"`
	TotalEquity       string     `json:"total_equity"`
	AvailableMargin   string     `json:"available_margin"`
	InitialMargin     string     `json:"initial_margin"`
	MaintenanceMargin string     `json:"maintenance_margin"`
	Positions         []Position `json:"positions"`
}
