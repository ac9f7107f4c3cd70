package vectorstore

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMatchesFilter(t *testing.T) {
	m := Metadata{
		ID:          "2:255",
		ChapterID:   2,
		ChapterName: "The Cow",
		OriginPlace: "Medina",
		Extra:       map[string]string{"revelation_order": "87"},
	}

	cases := []struct {
		name   string
		filter map[string]interface{}
		want   bool
	}{
		{"nil filter", nil, true},
		{"equality", map[string]interface{}{"chapter_id": 2}, true},
		{"equality miss", map[string]interface{}{"chapter_id": 3}, false},
		{"float equality", map[string]interface{}{"chapter_id": float64(2)}, true},
		{"string field", map[string]interface{}{"origin_place": "Medina"}, true},
		{"list membership", map[string]interface{}{"chapter_id": []interface{}{1, 2, 3}}, true},
		{"list miss", map[string]interface{}{"chapter_id": []interface{}{4, 5}}, false},
		{"int list", map[string]interface{}{"chapter_id": []int{2}}, true},
		{"string list", map[string]interface{}{"origin_place": []string{"Mecca", "Medina"}}, true},
		{"extra field", map[string]interface{}{"revelation_order": "87"}, true},
		{"unknown key", map[string]interface{}{"no_such_key": "x"}, false},
		{"conjunction", map[string]interface{}{"chapter_id": 2, "origin_place": "Medina"}, true},
		{"conjunction miss", map[string]interface{}{"chapter_id": 2, "origin_place": "Mecca"}, false},
	}
	for _, tc := range cases {
		if got := m.MatchesFilter(tc.filter); got != tc.want {
			t.Errorf("%s: MatchesFilter = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMetadataJSONFlattening(t *testing.T) {
	added := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := Metadata{
		ID:          "1:1",
		ChapterID:   1,
		ChapterName: "The Opening",
		Text:        "bismillah",
		Translation: "In the name of God",
		AddedAt:     added,
		Extra:       map[string]string{"source": "dataset-v2"},
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Extra entries sit at the top level of the object, not nested.
	var flat map[string]interface{}
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("Unmarshal to map: %v", err)
	}
	if flat["source"] != "dataset-v2" {
		t.Fatalf("extra field not flattened: %v", flat)
	}
	if flat["id"] != "1:1" || flat["chapter_id"] != float64(1) {
		t.Fatalf("known fields wrong: %v", flat)
	}

	var back Metadata
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.ID != m.ID || back.Text != m.Text || back.Translation != m.Translation {
		t.Fatalf("round trip lost fields: %+v", back)
	}
	if !back.AddedAt.Equal(added) {
		t.Fatalf("added_at round trip: %v", back.AddedAt)
	}
	if back.Extra["source"] != "dataset-v2" {
		t.Fatalf("extra round trip: %+v", back.Extra)
	}
}

func TestMetadataNonStringExtraKeptAsJSONText(t *testing.T) {
	raw := `{"id": "1:1", "chapter_id": 1, "revelation_order": 3, "abrogated": false}`
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m.Extra["revelation_order"] != "3" {
		t.Fatalf("numeric extra = %q, want its JSON text \"3\"", m.Extra["revelation_order"])
	}
	if m.Extra["abrogated"] != "false" {
		t.Fatalf("boolean extra = %q, want its JSON text \"false\"", m.Extra["abrogated"])
	}
	// The preserved text still matches numerically tolerant filters.
	if !m.MatchesFilter(map[string]interface{}{"revelation_order": "3"}) {
		t.Fatal("string filter on preserved extra failed")
	}
}

func TestMetadataPassage(t *testing.T) {
	m := Metadata{
		ID:          "2:255",
		ChapterID:   2,
		ChapterName: "The Cow",
		OriginPlace: "Medina",
		Text:        "ayat al-kursi",
		Translation: "God, there is no god but He",
	}
	p := m.Passage()
	if p.ID != "2:255" || p.ChapterID != 2 || p.ChapterName != "The Cow" {
		t.Fatalf("passage wrong: %+v", p)
	}
	if p.Text != m.Text || p.Translation != m.Translation || p.OriginPlace != m.OriginPlace {
		t.Fatalf("passage fields wrong: %+v", p)
	}
}
