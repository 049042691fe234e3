// Package fulltext implements the external term index the core pairs
// with the main entity store: per-entity documents built from a small
// set of property-prefixed fields, searchable by phrase, boolean AND/NOT,
// and trailing-wildcard prefix terms.
//
// No third-party full-text engine was available to wire this component
// to (no search-engine library appears anywhere in the corpus this
// module was grounded on), so it is a hand-rolled inverted index over
// the same bbolt-backed primitives the rest of the store uses: a
// duplicate-keyed postings database (term -> entity identifier), a
// per-document term list (for removal), and a position list per
// (document, term) pair used to verify phrase adjacency.
package fulltext

import (
	"encoding/binary"
	"strings"

	"github.com/sinklabs/sink/pkg/metrics"
	"github.com/sinklabs/sink/pkg/store"
)

// fieldPrefixes mirrors the property -> single-letter prefix map the
// reference implementation indexes mail with.
var fieldPrefixes = map[string]string{
	"subject":    "s",
	"recipients": "r",
	"sender":     "f",
}

const (
	dbPostings  = "postings"
	dbDocTerms  = "docterms"
	dbPositions = "positions"
	dbDocs      = "docs"
)

// Index is one resource's full-text document store, backed by its own
// dedicated environment (a separate bbolt file opened at the path given
// to Open), separate from the resource's main entity environment.
type Index struct {
	env *store.Environment
}

// Open opens (creating if necessary) the full-text environment at path.
func Open(path string) (*Index, error) {
	env, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &Index{env: env}, nil
}

func (i *Index) Close() error { return i.env.Close() }

// Add indexes entity id's fields, replacing any document previously
// indexed under the same identifier. fields maps property name
// ("subject", "sender", "recipients", ...) to its raw text value; a
// property with no entry in fieldPrefixes is still indexed under the
// unprefixed term stream so an unscoped search still finds it.
func (i *Index) Add(id []byte, fields map[string]string) error {
	if err := i.Remove(id); err != nil && !store.IsNotFound(err) {
		return err
	}

	tx, err := i.env.CreateTransaction(store.ReadWrite)
	if err != nil {
		return err
	}
	defer tx.Abort()

	postings, err := tx.CreateDatabaseIfNotExists(dbPostings, true)
	if err != nil {
		return err
	}
	docterms, err := tx.CreateDatabaseIfNotExists(dbDocTerms, true)
	if err != nil {
		return err
	}
	positions, err := tx.CreateDatabaseIfNotExists(dbPositions, false)
	if err != nil {
		return err
	}
	docs, err := tx.CreateDatabaseIfNotExists(dbDocs, false)
	if err != nil {
		return err
	}
	if err := docs.Write(id, []byte{1}); err != nil {
		return err
	}

	pos := 0
	for _, field := range sortedFieldNames(fields) {
		value := fields[field]
		if value == "" {
			continue
		}
		words := tokenize(value)
		prefix, hasPrefix := fieldPrefixes[field]
		for _, w := range words {
			if err := indexTerm(postings, docterms, positions, id, w, pos); err != nil {
				return err
			}
			if hasPrefix {
				if err := indexTerm(postings, docterms, positions, id, prefix+":"+w, pos); err != nil {
					return err
				}
			}
			pos++
		}
		// Prevent phrase searches from spanning different indexed fields.
		pos++
	}

	idTerm := "Q:" + string(id)
	if err := postings.Write([]byte(idTerm), id); err != nil {
		return err
	}
	if err := docterms.Write(id, []byte(idTerm)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	i.refreshDocumentCount()
	return nil
}

// refreshDocumentCount recomputes sink_fulltext_documents_total from the
// dedicated document-presence marker table.
func (i *Index) refreshDocumentCount() {
	count, err := i.Count()
	if err != nil {
		return
	}
	metrics.FulltextDocumentsTotal.Set(float64(count))
}

// Count returns the number of documents currently indexed.
func (i *Index) Count() (int, error) {
	tx, err := i.env.CreateTransaction(store.ReadOnly)
	if err != nil {
		return 0, err
	}
	defer tx.Abort()

	docs, err := tx.Database(dbDocs)
	if store.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return docs.Size(), nil
}

// Remove deletes the document indexed under id, if any.
func (i *Index) Remove(id []byte) error {
	tx, err := i.env.CreateTransaction(store.ReadWrite)
	if err != nil {
		return err
	}
	defer tx.Abort()

	docterms, err := tx.Database(dbDocTerms)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	postings, err := tx.Database(dbPostings)
	if err != nil {
		return err
	}
	positionsDB, err := tx.Database(dbPositions)
	if err != nil {
		return err
	}

	var terms [][]byte
	if err := docterms.Scan(id, func(_, v []byte) (bool, error) {
		terms = append(terms, append([]byte{}, v...))
		return true, nil
	}); err != nil {
		return err
	}

	for _, term := range terms {
		if err := postings.RemoveValue(term, id); err != nil {
			return err
		}
		if err := positionsDB.Remove(positionKey(id, term)); err != nil {
			return err
		}
	}
	if err := docterms.Remove(id); err != nil {
		return err
	}
	if docs, err := tx.Database(dbDocs); err == nil {
		if err := docs.Remove(id); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	i.refreshDocumentCount()
	return nil
}

// Search resolves a query string against the index and returns matching
// identifiers, newest-term-first is not guaranteed: callers that need a
// particular order re-sort through the main type index. Results are
// capped per the query's term length: short queries (1-3 chars) cap at
// 500 results, 4 chars at 5000, anything longer at 20000 — wider queries
// are assumed to be more selective and can afford a larger scan.
func (i *Index) Search(query string) ([][]byte, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FulltextQueryDuration)

	q := parseQuery(query)
	if len(q.required) == 0 && len(q.phrases) == 0 {
		return nil, nil
	}

	tx, err := i.env.CreateTransaction(store.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer tx.Abort()

	postings, err := tx.Database(dbPostings)
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	positionsDB, err := tx.Database(dbPositions)
	if err != nil {
		return nil, err
	}

	var result map[string]bool
	for _, term := range q.required {
		hits, err := termPostings(postings, term)
		if err != nil {
			return nil, err
		}
		result = intersect(result, hits)
		if len(result) == 0 {
			return nil, nil
		}
	}

	for _, phrase := range q.phrases {
		hits, err := i.phraseMatches(postings, positionsDB, phrase)
		if err != nil {
			return nil, err
		}
		result = intersect(result, hits)
		if len(result) == 0 {
			return nil, nil
		}
	}

	for _, term := range q.excluded {
		hits, err := termPostings(postings, term)
		if err != nil {
			return nil, err
		}
		for id := range hits {
			delete(result, id)
		}
	}

	cap := resultCap(query)
	out := make([][]byte, 0, len(result))
	for id := range result {
		if len(out) >= cap {
			break
		}
		out = append(out, []byte(id))
	}
	return out, nil
}

func resultCap(query string) int {
	switch len(strings.TrimSpace(query)) {
	case 1, 2, 3:
		return 500
	case 4:
		return 5000
	default:
		return 20000
	}
}

func termPostings(postings *store.NamedDatabase, term string) (map[string]bool, error) {
	out := map[string]bool{}
	collect := func(_, v []byte) (bool, error) {
		out[string(v)] = true
		return true, nil
	}
	if stem, ok := strings.CutSuffix(term, "*"); ok {
		if stem == "" {
			return out, nil
		}
		err := postings.ScanPrefix([]byte(stem), collect)
		return out, err
	}
	err := postings.Scan([]byte(term), collect)
	return out, err
}

func intersect(a, b map[string]bool) map[string]bool {
	if a == nil {
		return b
	}
	out := map[string]bool{}
	for id := range a {
		if b[id] {
			out[id] = true
		}
	}
	return out
}

func (i *Index) phraseMatches(postings, positions *store.NamedDatabase, words []string) (map[string]bool, error) {
	if len(words) == 0 {
		return map[string]bool{}, nil
	}
	candidates, err := termPostings(postings, words[0])
	if err != nil {
		return nil, err
	}
	for _, w := range words[1:] {
		hits, err := termPostings(postings, w)
		if err != nil {
			return nil, err
		}
		candidates = intersect(candidates, hits)
	}

	out := map[string]bool{}
	for id := range candidates {
		ok, err := adjacentInDoc(positions, []byte(id), words)
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = true
		}
	}
	return out, nil
}

// adjacentInDoc reports whether words appear as a contiguous run of
// positions in the document's recorded position lists for its first
// word, i.e. there exists a position p such that word[k] occupies p+k
// for every k.
func adjacentInDoc(positions *store.NamedDatabase, id []byte, words []string) (bool, error) {
	firstPositions, err := readPositions(positions, id, words[0])
	if err != nil {
		return false, err
	}
	for _, p := range firstPositions {
		match := true
		for k := 1; k < len(words); k++ {
			ps, err := readPositions(positions, id, words[k])
			if err != nil {
				return false, err
			}
			if !containsInt(ps, p+k) {
				match = false
				break
			}
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func indexTerm(postings, docterms, positions *store.NamedDatabase, id []byte, term string, pos int) error {
	if err := postings.Write([]byte(term), id); err != nil {
		return err
	}
	if err := docterms.Write(id, []byte(term)); err != nil {
		return err
	}
	existing, err := readPositions(positions, id, term)
	if err != nil {
		return err
	}
	existing = append(existing, pos)
	return positions.Write(positionKey(id, term), encodePositions(existing))
}

func positionKey(id []byte, term string) []byte {
	return append(append(append([]byte{}, id...), 0), term...)
}

func readPositions(db *store.NamedDatabase, id []byte, term string) ([]int, error) {
	var out []int
	err := db.Scan(positionKey(id, term), func(_, v []byte) (bool, error) {
		out = decodePositions(v)
		return false, nil
	})
	return out, err
}

func encodePositions(ps []int) []byte {
	b := make([]byte, 0, len(ps)*4)
	tmp := make([]byte, 4)
	for _, p := range ps {
		binary.BigEndian.PutUint32(tmp, uint32(p))
		b = append(b, tmp...)
	}
	return b
}

func decodePositions(b []byte) []int {
	out := make([]int, 0, len(b)/4)
	for i := 0; i+4 <= len(b); i += 4 {
		out = append(out, int(binary.BigEndian.Uint32(b[i:i+4])))
	}
	return out
}

func sortedFieldNames(fields map[string]string) []string {
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	// Deterministic position assignment regardless of Go's randomized map
	// iteration order, so phrase adjacency is stable across runs.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// query is a parsed search request: required terms/phrases that must
// all match (AND, the engine's default operator) and excluded terms
// marked with a leading '-'.
type query struct {
	required []string
	phrases  [][]string
	excluded []string
}

func parseQuery(raw string) query {
	var q query
	var i int
	runes := []rune(raw)
	for i < len(runes) {
		for i < len(runes) && runes[i] == ' ' {
			i++
		}
		if i >= len(runes) {
			break
		}
		if runes[i] == '"' {
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				j++
			}
			phrase := strings.ToLower(string(runes[i+1 : min(j, len(runes))]))
			if words := strings.Fields(phrase); len(words) > 0 {
				q.phrases = append(q.phrases, words)
			}
			i = j + 1
			continue
		}
		j := i
		for j < len(runes) && runes[j] != ' ' {
			j++
		}
		token := string(runes[i:j])
		i = j

		switch {
		case strings.HasPrefix(token, "-") && len(token) > 1:
			q.excluded = append(q.excluded, strings.ToLower(token[1:]))
		case token != "":
			q.required = append(q.required, strings.ToLower(token))
		}
	}
	return q
}

// tokenize splits text into lowercase alphanumeric words.
func tokenize(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if isWordRune(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return words
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
