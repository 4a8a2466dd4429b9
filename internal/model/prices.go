package model

// PriceSnapshot is a ticker snapshot keyed by pair symbol, fetched once per
// evaluation pass and passed explicitly to the detector and alert manager.
// A missing symbol means the price was unavailable this pass; callers skip
// and retry next cycle.
type PriceSnapshot map[string]float64

// Get returns the price for a symbol and whether it was present.
func (p PriceSnapshot) Get(symbol string) (float64, bool) {
	v, ok := p[symbol]
	return v, ok
}
