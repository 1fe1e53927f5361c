package ehr

import (
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"

	"ehrchain/core/record"
)

// entry is what the service remembers about a record without reading its block.
type entry struct {
	Block      uint64
	PatientID  string
	AuthorID   string
	RecordType string
	Diagnosis  string
	CreatedAt  time.Time
	Amends     string
}

// recordIndex maps records to blocks and patients to the blocks holding their records.
type recordIndex struct {
	byID      map[string]entry
	byPatient map[string]*roaring64.Bitmap
	amendedBy map[string]string
}

func newRecordIndex() *recordIndex {
	return &recordIndex{
		byID:      make(map[string]entry),
		byPatient: make(map[string]*roaring64.Bitmap),
		amendedBy: make(map[string]string),
	}
}

func (x *recordIndex) add(r record.Record, blockIndex uint64) {
	x.byID[r.ID] = entry{
		Block:      blockIndex,
		PatientID:  r.PatientID,
		AuthorID:   r.AuthorID,
		RecordType: r.RecordType,
		Diagnosis:  r.Diagnosis,
		CreatedAt:  r.CreatedAt,
		Amends:     r.Amends,
	}
	bm, ok := x.byPatient[r.PatientID]
	if !ok {
		bm = roaring64.New()
		x.byPatient[r.PatientID] = bm
	}
	bm.Add(blockIndex)
	if r.Amends != "" {
		if _, taken := x.amendedBy[r.Amends]; !taken {
			x.amendedBy[r.Amends] = r.ID
		}
	}
}

func (x *recordIndex) get(id string) (entry, bool) {
	e, ok := x.byID[id]
	return e, ok
}

// patientBlocks returns the block indices holding patientID's records, ascending.
func (x *recordIndex) patientBlocks(patientID string) []uint64 {
	bm, ok := x.byPatient[patientID]
	if !ok {
		return nil
	}
	return bm.ToArray()
}

// lineage returns the IDs in id's amendment chain, oldest first.
func (x *recordIndex) lineage(id string) []string {
	root := id
	seen := map[string]bool{root: true}
	for {
		e, ok := x.byID[root]
		if !ok || e.Amends == "" || seen[e.Amends] {
			break
		}
		root = e.Amends
		seen[root] = true
	}
	chain := []string{root}
	visited := map[string]bool{root: true}
	for cur := root; ; {
		next, ok := x.amendedBy[cur]
		if !ok || visited[next] {
			break
		}
		chain = append(chain, next)
		visited[next] = true
		cur = next
	}
	return chain
}

func (x *recordIndex) entries() []entry {
	out := make([]entry, 0, len(x.byID))
	for _, e := range x.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Block < out[j].Block })
	return out
}
