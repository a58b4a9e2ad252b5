// Package broadcast runs one-shot oracle broadcasts over a MANET field.
//
// Every strategy shares the same node Behavior. They differ only in the
// relay sets an oracle Provider computes once, from a Snapshot of the field
// taken before any node moves.
package broadcast

import (
	"errors"
	"fmt"
)

// ErrUnknownStrategy is returned for an algorithm name outside Strategies.
var ErrUnknownStrategy = errors.New("unknown broadcast strategy")

// Strategy names an oracle broadcast algorithm.
type Strategy string

const (
	StrategyFlooding Strategy = "flooding"
	StrategyBFT      Strategy = "bft"
	StrategyMST      Strategy = "mst"
	StrategyBFTMST   Strategy = "bftmst"
	StrategyHop      Strategy = "hop"
	StrategyGTHop    Strategy = "gthop"
	StrategyFar      Strategy = "far"
	StrategyArea     Strategy = "area"
)

var providers = map[Strategy]Provider{
	StrategyFlooding: Flooding,
	StrategyBFT:      BFSTree,
	StrategyMST:      MST,
	StrategyBFTMST:   BFTMST,
	StrategyHop:      Hop,
	StrategyGTHop:    GTHop,
	StrategyFar:      Far,
	StrategyArea:     Area,
}

// Strategies lists every supported strategy in a stable order.
func Strategies() []Strategy {
	return []Strategy{
		StrategyFlooding,
		StrategyBFT,
		StrategyMST,
		StrategyBFTMST,
		StrategyHop,
		StrategyGTHop,
		StrategyFar,
		StrategyArea,
	}
}

// ParseStrategy resolves an algorithm name.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(name)
	if _, ok := providers[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Provider returns the relay-set oracle of the strategy.
func (s Strategy) Provider() (Provider, error) {
	p, ok := providers[s]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, string(s))
	}
	return p, nil
}

func (s Strategy) String() string { return string(s) }
