package store

import (
	"sort"

	"gihan9a/treestore/internal/codec"
	"gihan9a/treestore/internal/revtree"
	"gihan9a/treestore/internal/storage"
)

// ChangesOptions selects entries of the change feed.
type ChangesOptions struct {
	Since      uint64
	Limit      int
	Descending bool
	// AllLeaves lists every leaf revision of each document, not just the winner.
	AllLeaves bool
	// IncludeDocs attaches the winning revision's content.
	IncludeDocs bool
}

// Change is one document in the change feed, at its latest sequence.
type Change struct {
	Seq     uint64
	ID      string
	Revs    []string
	Deleted bool
	Doc     *Doc
}

// Changes lists documents changed after opts.Since. Every document appears
// once, at the sequence of its most recent change.
func (s *Store) Changes(opts ChangesOptions) ([]Change, error) {
	entries, err := s.db.Changes(opts.Since, opts.Descending, opts.Limit)
	if err != nil {
		return nil, storageErr(err)
	}

	changes := make([]Change, 0, len(entries))
	for _, e := range entries {
		c := Change{Seq: e.Seq, ID: e.Doc, Revs: []string{e.Rev}, Deleted: e.Deleted}
		if opts.AllLeaves || opts.IncludeDocs {
			doc, err := s.load(e.Doc)
			if err != nil {
				return nil, err
			}
			if opts.AllLeaves {
				c.Revs = doc.tree.Leaves()
			}
			if opts.IncludeDocs {
				d, err := doc.read(codec.Path{}, e.Rev)
				if err == nil {
					c.Doc = d
				}
			}
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// RevsDiffResult reports the revisions of one document not held locally.
type RevsDiffResult struct {
	Missing           []string
	PossibleAncestors []string
}

// RevsDiff returns, per document, the candidate revisions that are unknown
// here. Documents with nothing missing are left out. Revisions whose content
// was compacted away still count as present.
func (s *Store) RevsDiff(candidates map[string][]string) (map[string]RevsDiffResult, error) {
	out := make(map[string]RevsDiffResult)
	for id, revs := range candidates {
		doc, err := s.load(id)
		if err != nil {
			return nil, err
		}

		var res RevsDiffResult
		ancestors := make(map[string]bool)
		for _, rev := range revs {
			if doc.tree.Contains(rev) {
				continue
			}
			res.Missing = append(res.Missing, rev)
			for _, a := range doc.tree.PossibleAncestors(rev) {
				ancestors[a] = true
			}
		}
		if len(res.Missing) == 0 {
			continue
		}
		for a := range ancestors {
			res.PossibleAncestors = append(res.PossibleAncestors, a)
		}
		sort.Slice(res.PossibleAncestors, func(i, j int) bool {
			return revtree.Compare(res.PossibleAncestors[i], res.PossibleAncestors[j]) > 0
		})
		out[id] = res
	}
	return out, nil
}

// Row is one entry of AllDocs.
type Row struct {
	ID  string
	Rev string
	Doc *Doc
}

// AllDocs lists live documents in id order.
func (s *Store) AllDocs(includeDocs bool) ([]Row, error) {
	rows := make([]Row, 0)
	err := s.db.Docs(func(m *storage.DocMeta) error {
		if m.Deleted {
			return nil
		}
		row := Row{ID: m.ID, Rev: m.Winner}
		if includeDocs {
			d, err := s.Get(codec.Path{m.ID}, m.Winner)
			if err != nil {
				return err
			}
			row.Doc = d
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return rows, nil
}

// Info summarizes the store.
type Info struct {
	UpdateSeq      uint64
	DocCount       int
	DocDelCount    int
	CompactRunning bool
}

// Info counts documents and reports the current sequence.
func (s *Store) Info() (Info, error) {
	info := Info{UpdateSeq: s.UpdateSeq(), CompactRunning: s.compacting.Load()}
	err := s.db.Docs(func(m *storage.DocMeta) error {
		if m.Deleted {
			info.DocDelCount++
		} else {
			info.DocCount++
		}
		return nil
	})
	if err != nil {
		return Info{}, storageErr(err)
	}
	return info, nil
}
