package dispatching

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spec-kit/dispatch-service/pkg/util/errorutil"
)

// ErrUnknownStrategy is wrapped by configuration errors naming an unregistered strategy.
var ErrUnknownStrategy = errors.New("unknown dispatching strategy")

// Resolver maps a domain's configured strategy name to a registered implementation.
type Resolver struct {
	domains    DomainConfig
	strategies map[string]Strategy
}

// NewResolver registers strategies by case-insensitive name.
func NewResolver(domains DomainConfig, strategies ...Strategy) *Resolver {
	r := &Resolver{domains: domains, strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[strings.ToLower(s.Name())] = s
	}
	return r
}

// Validate checks every configured domain. Call it once at startup; any error is fatal.
func (r *Resolver) Validate() error {
	ids := append([]string{r.domains.DefaultDomainID()}, r.domains.DomainIDs()...)
	seen := make(map[string]bool, len(ids))
	var errs []error
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := r.Resolve(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resolve returns the strategy configured for domainID. An empty name selects
// MatrixFactorization.
func (r *Resolver) Resolve(domainID string) (Strategy, error) {
	name := strings.TrimSpace(r.domains.StrategyName(domainID))
	if name == "" {
		name = StrategyMatrixFactorization
	}
	if s, ok := r.strategies[strings.ToLower(name)]; ok {
		return s, nil
	}
	return nil, errorutil.NewConfigError(
		fmt.Sprintf("domain %q uses unknown dispatching strategy %q", domainID, name),
		map[string]any{"domain_id": domainID, "strategy": name, "registered": r.Names()},
		ErrUnknownStrategy,
	)
}

// Names lists registered strategy names.
func (r *Resolver) Names() []string {
	out := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s.Name())
	}
	sort.Strings(out)
	return out
}
