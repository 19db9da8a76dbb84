// Package knowledge serves the static medicinal information attached to each
// predicted species.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"

	"leaf-backend/internal/core/types"
	"leaf-backend/internal/storage"
)

const missingField = "N/A"

type entry struct {
	ScientificName  *string  `json:"Scientific Name"`
	MedicinalUses   []string `json:"Medicinal Uses"`
	ActiveCompounds []string `json:"Active Compounds"`
	Precautions     *string  `json:"Precautions"`
	Sources         []string `json:"Sources"`
}

func (e entry) record() types.KnowledgeRecord {
	rec := types.KnowledgeRecord{
		ScientificName:  missingField,
		MedicinalUses:   nonNil(e.MedicinalUses),
		ActiveCompounds: nonNil(e.ActiveCompounds),
		Precautions:     missingField,
		Sources:         nonNil(e.Sources),
		Available:       true,
	}
	if e.ScientificName != nil {
		rec.ScientificName = *e.ScientificName
	}
	if e.Precautions != nil {
		rec.Precautions = *e.Precautions
	}
	return rec
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Table is immutable after Parse and safe for concurrent lookups.
type Table struct {
	records map[string]types.KnowledgeRecord
}

func Parse(data []byte) (*Table, error) {
	var raw map[string]entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid knowledge table: %w", err)
	}

	records := make(map[string]types.KnowledgeRecord, len(raw))
	for label, e := range raw {
		records[label] = e.record()
	}
	return &Table{records: records}, nil
}

func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading knowledge table %s: %w", path, err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("error loading knowledge table %s: %w", path, err)
	}
	slog.Info("knowledge table loaded", "path", path, "entries", table.Len(), "size_kb", float64(len(data))/1024)
	return table, nil
}

// Load reads the table from a local path or, for s3:// paths, from the object
// store.
func Load(ctx context.Context, path string, store storage.ObjectStore) (*Table, error) {
	if !storage.IsRemote(path) {
		return LoadFile(path)
	}
	if store == nil {
		return nil, fmt.Errorf("knowledge table %s requires an object store", path)
	}

	loc, err := storage.ParseLocation(path)
	if err != nil {
		return nil, err
	}
	data, err := store.GetObject(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("error reading knowledge table %s: %w", path, err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("error loading knowledge table %s: %w", path, err)
	}
	slog.Info("knowledge table loaded", "path", path, "entries", table.Len())
	return table, nil
}

// Lookup never fails: unknown labels get the placeholder record. The lists of
// the returned record are copies, the table itself is never handed out.
func (t *Table) Lookup(label string) types.KnowledgeRecord {
	if t != nil {
		if rec, ok := t.records[label]; ok {
			rec.MedicinalUses = slices.Clone(rec.MedicinalUses)
			rec.ActiveCompounds = slices.Clone(rec.ActiveCompounds)
			rec.Sources = slices.Clone(rec.Sources)
			return rec
		}
	}
	return types.PlaceholderRecord()
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

func (t *Table) Labels() []string {
	if t == nil {
		return nil
	}
	labels := make([]string, 0, len(t.records))
	for label := range t.records {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
