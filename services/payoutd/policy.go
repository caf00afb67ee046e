package payoutd

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrPolicyNotFound indicates that no policy exists for the requested denom.
var ErrPolicyNotFound = errors.New("payoutd: policy not found")

// ErrDailyCapExceeded indicates that applying a payout would exceed the configured window cap.
var ErrDailyCapExceeded = errors.New("payoutd: daily cap exceeded")

// ErrSoftBalanceExceeded reports that the treasury soft inventory would be exhausted by a payout.
var ErrSoftBalanceExceeded = errors.New("payoutd: insufficient soft inventory")

// Policy captures throttling rules for a single payout denom. A nil
// SoftInventory leaves inventory untracked.
type Policy struct {
	Denom         string
	DailyCap      *big.Int
	SoftInventory *big.Int
}

type policyFile struct {
	Denom         string `yaml:"denom"`
	DailyCap      string `yaml:"daily_cap"`
	SoftInventory string `yaml:"soft_inventory"`
}

// LoadPolicies reads policies from the provided YAML file on disk.
func LoadPolicies(path string) ([]Policy, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open policies: %w", err)
	}
	defer file.Close()
	var entries []policyFile
	if err := yaml.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode policies: %w", err)
	}
	policies := make([]Policy, 0, len(entries))
	seen := make(map[string]struct{})
	for _, entry := range entries {
		denom := normalizeDenom(entry.Denom)
		if denom == "" {
			return nil, fmt.Errorf("policy denom required")
		}
		if _, exists := seen[denom]; exists {
			return nil, fmt.Errorf("duplicate policy for denom %s", denom)
		}
		capAmount, err := parseAmount(entry.DailyCap)
		if err != nil {
			return nil, fmt.Errorf("denom %s daily_cap: %w", denom, err)
		}
		var inventory *big.Int
		if strings.TrimSpace(entry.SoftInventory) != "" {
			if inventory, err = parseAmount(entry.SoftInventory); err != nil {
				return nil, fmt.Errorf("denom %s soft_inventory: %w", denom, err)
			}
		}
		policies = append(policies, Policy{Denom: denom, DailyCap: capAmount, SoftInventory: inventory})
		seen[denom] = struct{}{}
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Denom < policies[j].Denom })
	return policies, nil
}

func normalizeDenom(denom string) string {
	return strings.ToLower(strings.TrimSpace(denom))
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	return value, nil
}

// PolicyEnforcer coordinates access to the configured payout caps.
type PolicyEnforcer struct {
	mu        sync.Mutex
	policies  map[string]Policy
	totals    map[string]map[string]*big.Int
	inventory map[string]*big.Int
}

// NewPolicyEnforcer constructs an enforcer for the supplied policies.
func NewPolicyEnforcer(policies []Policy) (*PolicyEnforcer, error) {
	if len(policies) == 0 {
		return nil, fmt.Errorf("at least one policy must be configured")
	}
	registry := make(map[string]Policy, len(policies))
	totals := make(map[string]map[string]*big.Int, len(policies))
	inventory := make(map[string]*big.Int, len(policies))
	for _, policy := range policies {
		denom := normalizeDenom(policy.Denom)
		if denom == "" {
			return nil, fmt.Errorf("policy denom required")
		}
		if _, exists := registry[denom]; exists {
			return nil, fmt.Errorf("duplicate policy for denom %s", denom)
		}
		capAmount := big.NewInt(0)
		if policy.DailyCap != nil {
			capAmount.Set(policy.DailyCap)
		}
		registry[denom] = Policy{Denom: denom, DailyCap: capAmount}
		totals[denom] = make(map[string]*big.Int)
		if policy.SoftInventory != nil {
			inventory[denom] = new(big.Int).Set(policy.SoftInventory)
		}
	}
	return &PolicyEnforcer{policies: registry, totals: totals, inventory: inventory}, nil
}

// Validate ensures a payout complies with the configured caps.
func (p *PolicyEnforcer) Validate(denom string, amount *big.Int, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	policy, ok := p.policies[normalizeDenom(denom)]
	if !ok {
		return ErrPolicyNotFound
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("payout amount must be positive")
	}
	if inventory, tracked := p.inventory[policy.Denom]; tracked && inventory.Cmp(amount) < 0 {
		return ErrSoftBalanceExceeded
	}
	if p.remainingLocked(policy, now).Cmp(amount) < 0 {
		return ErrDailyCapExceeded
	}
	return nil
}

// Record notes a successful payout against the configured caps.
func (p *PolicyEnforcer) Record(denom string, amount *big.Int, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	policy, ok := p.policies[normalizeDenom(denom)]
	if !ok || amount == nil {
		return
	}
	dayKey := dayBucket(now)
	if _, ok := p.totals[policy.Denom][dayKey]; !ok {
		p.totals[policy.Denom][dayKey] = big.NewInt(0)
	}
	p.totals[policy.Denom][dayKey].Add(p.totals[policy.Denom][dayKey], amount)
	if inv, tracked := p.inventory[policy.Denom]; tracked {
		inv.Sub(inv, amount)
		if inv.Sign() < 0 {
			inv.SetInt64(0)
		}
	}
}

// SetInventory overrides the tracked soft inventory for a denom.
func (p *PolicyEnforcer) SetInventory(denom string, balance *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := normalizeDenom(denom)
	if _, ok := p.policies[key]; !ok {
		return
	}
	if balance == nil {
		delete(p.inventory, key)
		return
	}
	p.inventory[key] = new(big.Int).Set(balance)
}

// RemainingCap reports the remaining allowance for the denom in the current window.
func (p *PolicyEnforcer) RemainingCap(denom string, now time.Time) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	policy, ok := p.policies[normalizeDenom(denom)]
	if !ok {
		return big.NewInt(0)
	}
	return p.remainingLocked(policy, now)
}

func (p *PolicyEnforcer) remainingLocked(policy Policy, now time.Time) *big.Int {
	spent := p.totals[policy.Denom][dayBucket(now)]
	if spent == nil {
		spent = big.NewInt(0)
	}
	remaining := new(big.Int).Sub(policy.DailyCap, spent)
	if remaining.Sign() < 0 {
		remaining = big.NewInt(0)
	}
	return remaining
}

// Snapshot returns the remaining cap per denom for observability endpoints.
func (p *PolicyEnforcer) Snapshot(now time.Time) map[string]*big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]*big.Int, len(p.policies))
	for denom, policy := range p.policies {
		out[denom] = p.remainingLocked(policy, now)
	}
	return out
}

func dayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
