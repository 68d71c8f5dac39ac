package domain

// CartView is the read projection returned by GetCart: lines grouped by
// seller with per-seller subtotals. Building it never mutates state.
type CartView struct {
	GuestID string
	Groups  []CartSellerGroup
	Total   int64
}

type CartSellerGroup struct {
	SellerID string
	Lines    []OrderLine
	Subtotal int64
}

// GroupBySeller builds the per-seller projection of a cart's lines. Group
// order follows first appearance so the view is stable across reads.
func GroupBySeller(lines []OrderLine) []CartSellerGroup {
	index := make(map[string]int)
	var groups []CartSellerGroup
	for _, l := range lines {
		i, ok := index[l.SellerID]
		if !ok {
			i = len(groups)
			index[l.SellerID] = i
			groups = append(groups, CartSellerGroup{SellerID: l.SellerID})
		}
		groups[i].Lines = append(groups[i].Lines, l)
		groups[i].Subtotal += l.Subtotal()
	}
	return groups
}
