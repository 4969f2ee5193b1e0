package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		input string
		want  Location
	}{
		{"client", LocationClient},
		{"Client", LocationClient},
		{"server", LocationServer},
		{"servers", LocationServer},
		{"data-server", LocationDataServer},
		{"Data Server", LocationDataServer},
		{"render_server", LocationRenderServer},
	}

	for _, tt := range tests {
		got, err := ParseLocation(tt.input)
		if err != nil {
			t.Fatalf("ParseLocation(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseLocation(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := ParseLocation("gpu"); !errors.Is(err, ErrUnknownLocation) {
		t.Errorf("ParseLocation(gpu) err = %v, want ErrUnknownLocation", err)
	}
}

func TestLocationAsMapKey(t *testing.T) {
	in := map[Location]int{LocationClient: 1, LocationRenderServer: 4}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"client":1,"render-server":4}` {
		t.Errorf("marshal = %s", data)
	}

	var out map[Location]int
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[LocationRenderServer] != 4 {
		t.Errorf("unmarshal lost render-server: %v", out)
	}
}

func TestStreamKeyTitle(t *testing.T) {
	k := StreamKey{Location: LocationDataServer, Rank: 2}
	if k.Title() != "Data Server - Rank 2" {
		t.Errorf("Title() = %q", k.Title())
	}
	if k.String() != "data-server/2" {
		t.Errorf("String() = %q", k.String())
	}
}

func TestCheckRank(t *testing.T) {
	if err := CheckRank(0, 1); err != nil {
		t.Errorf("CheckRank(0,1) = %v", err)
	}
	for _, rank := range []int{-1, 1, 5} {
		if err := CheckRank(rank, 1); !errors.Is(err, ErrInvalidRank) {
			t.Errorf("CheckRank(%d,1) = %v, want ErrInvalidRank", rank, err)
		}
	}
}

func TestCategoriesOrder(t *testing.T) {
	cats := Categories()
	if len(cats) != 5 {
		t.Fatalf("len(Categories()) = %d, want 5", len(cats))
	}
	for i, c := range cats {
		if int(c) != i {
			t.Errorf("Categories()[%d] = %v", i, c)
		}
		parsed, err := ParseCategory(c.DisplayName())
		if err != nil || parsed != c {
			t.Errorf("ParseCategory(%q) = %v, %v", c.DisplayName(), parsed, err)
		}
	}
}
