// Package projectconfig resolves the tenant ("project") of a navigation and
// loads its branding and token filter configuration.
package projectconfig

// Default palette used until a tenant config is loaded.
const (
	DefaultMainColor      = "rgba(0, 0, 0, 0.15)"
	DefaultSecondaryColor = "rgb(29, 155, 240)"
)

// Colors is the tenant palette.
type Colors struct {
	Main      string `json:"main"`
	Secondary string `json:"secondary"`
}

// FilterRule narrows the token list. Known types are FilterCreators and FilterSymbol.
type FilterRule struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Filter rule types.
const (
	FilterCreators = "creators"
	FilterSymbol   = "symbol"
)

// Invalidations toggles which invalidation inputs the rental card offers.
type Invalidations struct {
	ShowUsagesOption     bool `json:"showUsagesOption"`
	ShowExpirationOption bool `json:"showExpirationOption"`
	ShowDurationOption   bool `json:"showDurationOption"`
	ShowManualOption     bool `json:"showManualOption"`
}

// InvalidationOptions are optional presets for the rental card.
type InvalidationOptions struct {
	DurationCategories     []string `json:"durationCategories,omitempty"`
	InvalidationCategories []string `json:"invalidationCategories,omitempty"`
	PaymentMints           []string `json:"paymentMints,omitempty"`
	SetClaimRentalReceipt  *bool    `json:"setClaimRentalReceipt,omitempty"`
}

// RentalCardOptions configures the rental card.
type RentalCardOptions struct {
	Invalidations       Invalidations        `json:"invalidations"`
	InvalidationOptions *InvalidationOptions `json:"invalidationOptions,omitempty"`
}

// Config is one tenant's presentation configuration.
type Config struct {
	LogoImage    string            `json:"logoImage"`
	Colors       Colors            `json:"colors"`
	Filters      []FilterRule      `json:"filters"`
	ProjectName  string            `json:"projectName"`
	RentalCard   RentalCardOptions `json:"rentalCard"`
	ConfigLoaded bool              `json:"configLoaded"`
}

// Default returns the configuration shown before any tenant config loads.
func Default() Config {
	return Config{
		Colors: Colors{
			Main:      DefaultMainColor,
			Secondary: DefaultSecondaryColor,
		},
		Filters: []FilterRule{},
		RentalCard: RentalCardOptions{
			Invalidations: Invalidations{
				ShowUsagesOption:     true,
				ShowExpirationOption: true,
				ShowDurationOption:   true,
				ShowManualOption:     true,
			},
		},
	}
}

// Clone returns a deep copy so callers cannot alias loader state.
func (c Config) Clone() Config {
	out := c
	out.Filters = append([]FilterRule{}, c.Filters...)
	if opts := c.RentalCard.InvalidationOptions; opts != nil {
		cp := *opts
		cp.DurationCategories = cloneStrings(opts.DurationCategories)
		cp.InvalidationCategories = cloneStrings(opts.InvalidationCategories)
		cp.PaymentMints = cloneStrings(opts.PaymentMints)
		if opts.SetClaimRentalReceipt != nil {
			v := *opts.SetClaimRentalReceipt
			cp.SetClaimRentalReceipt = &v
		}
		out.RentalCard.InvalidationOptions = &cp
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}
