package core

import "strings"

// TablePolicyResolver resolves purchased price ids against a static table.
// The table is copied at construction and read-only thereafter, so concurrent
// lookups need no locking.
type TablePolicyResolver struct {
	table map[string]string
}

func NewTablePolicyResolver(table map[string]string) *TablePolicyResolver {
	copied := make(map[string]string, len(table))
	for price, policy := range table {
		price = strings.TrimSpace(price)
		policy = strings.TrimSpace(policy)
		if price == "" || policy == "" {
			continue
		}
		copied[price] = policy
	}
	return &TablePolicyResolver{table: copied}
}

func (r *TablePolicyResolver) Resolve(priceID string) (string, bool) {
	if r == nil {
		return "", false
	}
	policy, ok := r.table[strings.TrimSpace(priceID)]
	return policy, ok
}

func (r *TablePolicyResolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.table)
}

var _ PolicyResolver = (*TablePolicyResolver)(nil)
