package cartsync

import (
	"fmt"
	"strings"

	syncErrors "github.com/shopkit/cartsync/errors"
)

// MergeItems reconciles a local replica's items with the server's items under
// the given conflict policy and returns the merged server-side view. The
// result is deterministic: server items keep their order, local-only items are
// appended in local order.
//
// Under AskUser the merge is deferred: any product present on both sides with
// differing quantities yields a conflict error and no merged result. Matching
// the server's own merge semantics here lets an in-process gateway stand in
// for the backend during tests and lets a Go backend reuse the same rules.
func MergeItems(local []Item, remote []RemoteItem, policy ConflictPolicy) ([]RemoteItem, error) {
	if !policy.Valid() {
		return nil, syncErrors.NewValidationError(syncErrors.OpMerge,
			fmt.Errorf("unknown conflict policy %q", policy))
	}

	localByProduct := make(map[string]*Item, len(local))
	for i := range local {
		localByProduct[local[i].ProductID] = &local[i]
	}

	if policy == AskUser {
		var conflicting []string
		for _, ri := range remote {
			if li, ok := localByProduct[ri.ProductID]; ok && li.Quantity != ri.Quantity {
				conflicting = append(conflicting, ri.ProductID)
			}
		}
		if len(conflicting) > 0 {
			return nil, syncErrors.NewConflictError(syncErrors.OpMerge,
				fmt.Errorf("merge deferred for products: %s", strings.Join(conflicting, ", ")))
		}
	}

	merged := make([]RemoteItem, 0, len(remote)+len(local))
	seen := make(map[string]bool, len(remote))

	for _, ri := range remote {
		seen[ri.ProductID] = true
		li, ok := localByProduct[ri.ProductID]
		if !ok {
			merged = append(merged, ri)
			continue
		}
		merged = append(merged, mergeOne(*li, ri, policy))
	}

	for i := range local {
		if seen[local[i].ProductID] {
			continue
		}
		merged = append(merged, localToRemote(local[i]))
	}

	return merged, nil
}

// mergeOne applies the policy to a single product present on both sides.
// The server's unit price wins in every policy except KeepLocal: price is
// server authority, only quantities are in dispute.
func mergeOne(local Item, remote RemoteItem, policy ConflictPolicy) RemoteItem {
	switch policy {
	case KeepServer:
		return remote
	case KeepLocal:
		return localToRemote(local)
	case KeepLatest:
		if local.UpdatedAt.After(remote.UpdatedAt) {
			out := localToRemote(local)
			out.UnitPrice = remote.UnitPrice
			return out
		}
		return remote
	case AskUser:
		// Reaching here means the quantities agree; nothing to defer.
		return remote
	default: // SumQuantities
		out := remote
		out.Quantity = local.Quantity + remote.Quantity
		if local.UpdatedAt.After(remote.UpdatedAt) {
			out.UpdatedAt = local.UpdatedAt
		}
		return out
	}
}

func localToRemote(it Item) RemoteItem {
	return RemoteItem{
		ProductID:    it.ProductID,
		Quantity:     it.Quantity,
		UnitPrice:    it.UnitPrice,
		UpdatedAt:    it.UpdatedAt,
		ProductName:  it.ProductName,
		ProductImage: it.ProductImage,
	}
}
