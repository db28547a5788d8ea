// ABOUTME: Index-based duplicate matching over normalized identity signals
// ABOUTME: Buckets contacts by URL, email, phone and name+company, then adds fuzzy name matches
package dedupe

import (
	"sort"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/models"
	"github.com/xrash/smetrics"
)

// Candidate is a proposed duplicate pair in canonical order.
type Candidate struct {
	A          uuid.UUID
	B          uuid.UUID
	MatchType  string
	Confidence string
}

type pairKey struct{ a, b uuid.UUID }

type ContactMatcher struct {
	byURL         map[string][]uuid.UUID
	byEmail       map[string][]uuid.UUID
	byPhone       map[string][]uuid.UUID
	byNameCompany map[string][]uuid.UUID
	// byLastCompany groups contacts for fuzzy first-name comparison.
	byLastCompany map[string][]nameEntry
}

type nameEntry struct {
	id    uuid.UUID
	first string
}

// NewContactMatcher indexes the given contacts.
func NewContactMatcher(contacts []models.Contact) *ContactMatcher {
	m := &ContactMatcher{
		byURL:         make(map[string][]uuid.UUID),
		byEmail:       make(map[string][]uuid.UUID),
		byPhone:       make(map[string][]uuid.UUID),
		byNameCompany: make(map[string][]uuid.UUID),
		byLastCompany: make(map[string][]nameEntry),
	}
	for i := range contacts {
		m.AddContact(&contacts[i])
	}
	return m
}

// AddContact indexes one contact.
func (m *ContactMatcher) AddContact(c *models.Contact) {
	if u := NormalizeURL(c.ProfileURL); u != "" {
		m.byURL[u] = append(m.byURL[u], c.ID)
	}
	if e := NormalizeEmail(c.Email); e != "" {
		m.byEmail[e] = append(m.byEmail[e], c.ID)
	}
	if p := NormalizePhone(c.Phone); p != "" {
		m.byPhone[p] = append(m.byPhone[p], c.ID)
	}

	first, last := SplitName(c.FirstName, c.LastName, c.Name)
	company := NormalizeName(c.Company)
	if first == "" || last == "" || company == "" {
		return
	}
	m.byNameCompany[first+"\x00"+last+"\x00"+company] = append(m.byNameCompany[first+"\x00"+last+"\x00"+company], c.ID)
	lc := last + "\x00" + company
	m.byLastCompany[lc] = append(m.byLastCompany[lc], nameEntry{id: c.ID, first: first})
}

// Candidates returns every pair sharing a signal, one per contact pair, keeping the
// strongest match. Output is sorted by confidence, then by IDs.
func (m *ContactMatcher) Candidates() []Candidate {
	found := make(map[pairKey]Candidate)
	add := func(x, y uuid.UUID, matchType, confidence string) {
		if x == y {
			return
		}
		a, b := models.CanonicalPair(x, y)
		k := pairKey{a, b}
		if existing, ok := found[k]; ok && models.ConfidenceRank(existing.Confidence) >= models.ConfidenceRank(confidence) {
			return
		}
		found[k] = Candidate{A: a, B: b, MatchType: matchType, Confidence: confidence}
	}

	for _, idx := range []struct {
		buckets    map[string][]uuid.UUID
		matchType  string
		confidence string
	}{
		{m.byURL, models.MatchURL, models.ConfidenceHigh},
		{m.byEmail, models.MatchEmail, models.ConfidenceHigh},
		{m.byPhone, models.MatchPhone, models.ConfidenceHigh},
		{m.byNameCompany, models.MatchNameCompany, models.ConfidenceMedium},
	} {
		for _, ids := range idx.buckets {
			for i := 0; i < len(ids); i++ {
				for j := i + 1; j < len(ids); j++ {
					add(ids[i], ids[j], idx.matchType, idx.confidence)
				}
			}
		}
	}

	for _, entries := range m.byLastCompany {
		for i := 0; i < len(entries); i++ {
			for j := i + 1; j < len(entries); j++ {
				x, y := entries[i], entries[j]
				// Identical first names are already an exact name+company match.
				if x.first == y.first || !FuzzyFirstName(x.first, y.first) {
					continue
				}
				add(x.id, y.id, models.MatchFuzzy, models.ConfidenceLow)
			}
		}
	}

	out := make([]Candidate, 0, len(found))
	for _, c := range found {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := models.ConfidenceRank(out[i].Confidence), models.ConfidenceRank(out[j].Confidence)
		if ri != rj {
			return ri > rj
		}
		if out[i].A != out[j].A {
			return out[i].A.String() < out[j].A.String()
		}
		return out[i].B.String() < out[j].B.String()
	})
	return out
}

// FuzzyFirstName reports whether two normalized first names plausibly name the same person:
// one is a prefix of the other, or both have at least four letters and are within edit distance 2.
func FuzzyFirstName(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	if b[:len(a)] == a {
		return true
	}
	if len([]rune(a)) >= 4 && len([]rune(b)) >= 4 {
		return smetrics.WagnerFischer(a, b, 1, 1, 1) <= 2
	}
	return false
}
