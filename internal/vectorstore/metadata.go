package vectorstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruhapp/ruh/models"
)

// Metadata is the structured payload stored next to each vector. Known fields
// are explicit so missing-field bugs surface in tests; Extra carries any
// forward-compatible attributes without losing them across a save/load cycle.
// Extra values are strings: a non-string attribute found in the artifact is
// preserved as its literal JSON text (a number 3 loads as "3") rather than
// dropped, and filters compare it with the same string/number tolerance as
// known fields.
type Metadata struct {
	ID          string
	ChapterID   int
	ChapterName string
	OriginPlace string
	Text        string
	Translation string
	AddedAt     time.Time
	UpdatedAt   time.Time
	Extra       map[string]string
}

// Passage reconstructs the retrievable passage carried by this record.
func (m Metadata) Passage() models.Passage {
	return models.Passage{
		ID:          m.ID,
		Text:        m.Text,
		Translation: m.Translation,
		ChapterID:   m.ChapterID,
		ChapterName: m.ChapterName,
		OriginPlace: m.OriginPlace,
	}
}

// field resolves a filter key against known fields first, then Extra.
func (m Metadata) field(key string) (interface{}, bool) {
	switch key {
	case "id":
		return m.ID, true
	case "chapter_id":
		return m.ChapterID, true
	case "chapter_name":
		return m.ChapterName, true
	case "origin_place":
		return m.OriginPlace, true
	case "text":
		return m.Text, true
	case "translation":
		return m.Translation, true
	}
	v, ok := m.Extra[key]
	return v, ok
}

// MatchesFilter reports whether the record satisfies every filter entry. A
// list-valued filter matches when the record's value is a member of the list.
func (m Metadata) MatchesFilter(filter map[string]interface{}) bool {
	for key, want := range filter {
		got, ok := m.field(key)
		if !ok {
			return false
		}
		switch wv := want.(type) {
		case []interface{}:
			member := false
			for _, cand := range wv {
				if valuesEqual(got, cand) {
					member = true
					break
				}
			}
			if !member {
				return false
			}
		case []string:
			member := false
			for _, cand := range wv {
				if valuesEqual(got, cand) {
					member = true
					break
				}
			}
			if !member {
				return false
			}
		case []int:
			member := false
			for _, cand := range wv {
				if valuesEqual(got, cand) {
					member = true
					break
				}
			}
			if !member {
				return false
			}
		default:
			if !valuesEqual(got, want) {
				return false
			}
		}
	}
	return true
}

// valuesEqual compares loosely enough that JSON round trips (ints decoded as
// float64) and string forms still match.
func valuesEqual(a, b interface{}) bool {
	if a == b {
		return true
	}
	an, aok := asFloat(a)
	bn, bok := asFloat(b)
	if aok && bok {
		return an == bn
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// metadataJSON is the flat on-disk shape: known fields plus Extra entries
// merged into one object, matching the metadata.json array layout.
type metadataJSON struct {
	ID          string `json:"id"`
	ChapterID   int    `json:"chapter_id"`
	ChapterName string `json:"chapter_name,omitempty"`
	OriginPlace string `json:"origin_place,omitempty"`
	Text        string `json:"text,omitempty"`
	Translation string `json:"translation,omitempty"`
	AddedAt     string `json:"added_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	flat := map[string]interface{}{}
	for k, v := range m.Extra {
		flat[k] = v
	}
	base := metadataJSON{
		ID:          m.ID,
		ChapterID:   m.ChapterID,
		ChapterName: m.ChapterName,
		OriginPlace: m.OriginPlace,
		Text:        m.Text,
		Translation: m.Translation,
	}
	if !m.AddedAt.IsZero() {
		base.AddedAt = m.AddedAt.UTC().Format(time.RFC3339Nano)
	}
	if !m.UpdatedAt.IsZero() {
		base.UpdatedAt = m.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	raw, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var known map[string]interface{}
	if err := json.Unmarshal(raw, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		flat[k] = v
	}
	return json.Marshal(flat)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var base metadataJSON
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	m.ID = base.ID
	m.ChapterID = base.ChapterID
	m.ChapterName = base.ChapterName
	m.OriginPlace = base.OriginPlace
	m.Text = base.Text
	m.Translation = base.Translation
	if base.AddedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, base.AddedAt)
		if err != nil {
			return fmt.Errorf("parse added_at: %w", err)
		}
		m.AddedAt = t
	}
	if base.UpdatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, base.UpdatedAt)
		if err != nil {
			return fmt.Errorf("parse updated_at: %w", err)
		}
		m.UpdatedAt = t
	}
	known := map[string]bool{
		"id": true, "chapter_id": true, "chapter_name": true, "origin_place": true,
		"text": true, "translation": true, "added_at": true, "updated_at": true,
	}
	for k, raw := range flat {
		if known[k] {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		if m.Extra == nil {
			m.Extra = map[string]string{}
		}
		m.Extra[k] = s
	}
	return nil
}
