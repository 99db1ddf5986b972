package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps topics to rules. It is read-mostly; Register is meant for
// setup and tests.
type Registry struct {
	mu     sync.RWMutex
	rules  map[string]Rule
	params map[string]ParamRule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rules:  make(map[string]Rule),
		params: make(map[string]ParamRule),
	}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry preloaded with every built-in rule. The
// built-ins are checked once; an inconsistent built-in rule panics.
func Default() *Registry {
	defaultOnce.Do(func() {
		r := NewRegistry()
		for _, rule := range append(currentRules(), legacyRules()...) {
			if err := r.Register(rule); err != nil {
				panic(err)
			}
		}
		for _, p := range paramRules() {
			if err := r.RegisterParam(p); err != nil {
				panic(err)
			}
		}
		defaultReg = r
	})
	return defaultReg
}

// Register adds rule after validating it. A topic can be registered once.
// Rules sharing a table must agree on its columns.
func (r *Registry) Register(rule Rule) error {
	if err := rule.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.rules[rule.Topic]; dup {
		return fmt.Errorf("schema: topic %s already registered", rule.Topic)
	}
	for _, other := range r.rules {
		if other.Table == rule.Table && !sameColumns(other.Columns, rule.Columns) {
			return fmt.Errorf("schema: %s and %s disagree on the columns of %s", other.Topic, rule.Topic, rule.Table)
		}
	}
	r.rules[rule.Topic] = rule
	return nil
}

// RegisterParam adds a sensor-parameter rule.
func (r *Registry) RegisterParam(p ParamRule) error {
	if p.Topic == "" || p.Table == "" || len(p.Fields) == 0 {
		return fmt.Errorf("schema: parameter rule needs topic, table and fields (topic=%q)", p.Topic)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.params[p.Topic]; dup {
		return fmt.Errorf("schema: parameter topic %s already registered", p.Topic)
	}
	r.params[p.Topic] = p
	return nil
}

// Lookup returns the rule of topic. An unknown topic is not an error.
func (r *Registry) Lookup(topic string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[topic]
	return rule, ok
}

// LookupParam returns the parameter rule of topic.
func (r *Registry) LookupParam(topic string) (ParamRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.params[topic]
	return p, ok
}

// Topics returns every mapped topic, sorted.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rules))
	for t := range r.rules {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Tables returns one Table per destination, sorted by name. Parameter
// tables are included.
func (r *Registry) Tables() []Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]Table)
	for _, rule := range r.rules {
		if _, ok := seen[rule.Table]; !ok {
			seen[rule.Table] = rule.TableSpec()
		}
	}
	for _, p := range r.params {
		if _, ok := seen[p.Table]; !ok {
			seen[p.Table] = p.TableSpec()
		}
	}
	out := make([]Table, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RulesForTable returns the rules loading into table, sorted by topic.
func (r *Registry) RulesForTable(table string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Rule
	for _, rule := range r.rules {
		if rule.Table == table {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
