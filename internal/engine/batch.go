package engine

import "github.com/mdmestre/enroller/pkg/api"

// batch is the working set of one cycle. It is derived from the contact list
// and the ledger and never stored on its own.
type batch struct {
	pending []string
	toAdd   []string
}

func planBatch(contacts []string, rec *api.Record, addQuota int) batch {
	pending := rec.Pending(contacts)
	return batch{
		pending: pending,
		toAdd:   head(pending, addQuota),
	}
}

// linkCandidates returns the first linkQuota pending contacts that were not
// enrolled by direct addition. Contacts whose addition failed this cycle are
// included.
func linkCandidates(pending []string, rec *api.Record, linkQuota int) []string {
	out := make([]string, 0, min(len(pending), max(linkQuota, 0)))
	for _, id := range pending {
		if len(out) >= linkQuota {
			break
		}
		if rec.IsAdded(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// remaining counts pending contacts that are still unprocessed.
func remaining(pending []string, rec *api.Record) int {
	n := 0
	for _, id := range pending {
		if !rec.IsProcessed(id) {
			n++
		}
	}
	return n
}

func head(ids []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if n > len(ids) {
		n = len(ids)
	}
	return ids[:n]
}

// Preview is the plan of the next cycle, assuming every addition succeeds.
type Preview struct {
	Pending []string
	ToAdd   []string
	ToLink  []string
}

// PlanNext computes the next cycle's plan without touching rec.
func PlanNext(contacts []string, rec *api.Record, addQuota, linkQuota int) Preview {
	b := planBatch(contacts, rec, addQuota)
	assumed := rec.Clone()
	for _, id := range b.toAdd {
		assumed.MarkAdded(id)
	}
	return Preview{
		Pending: b.pending,
		ToAdd:   b.toAdd,
		ToLink:  linkCandidates(b.pending, assumed, linkQuota),
	}
}
