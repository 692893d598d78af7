package builtins

import "paperback/internal/strategy"

// Default SMA crossover periods when params leave them unset.
const (
	defaultShortPeriod = 10
	defaultLongPeriod  = 30
)

// NewRegistry builds a Registry holding every built-in strategy, constructed
// from the given numeric parameters.
func NewRegistry(params map[string]float64) *strategy.Registry {
	short := defaultShortPeriod
	long := defaultLongPeriod
	if v, ok := params["short"]; ok && v > 0 {
		short = int(v)
	}
	if v, ok := params["long"]; ok && v > 0 {
		long = int(v)
	}

	reg := strategy.NewRegistry()
	reg.Register(NewSMACross(short, long))
	reg.Register(NewBuyHold())
	return reg
}
