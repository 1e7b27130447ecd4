package shard

import (
	"testing"

	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
)

func TestParseIndex(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"shard_00000.txt", 0, false},
		{"shard_00042.txt", 42, false},
		{"shard_7.csv", 7, false},
		{"notashard.txt", 0, true},
		{"shard_abc.txt", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIndex(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIndex(%q) err = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("ParseIndex(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestSortByIndex(t *testing.T) {
	refs := []jobtypes.ShardRef{{Index: 3}, {Index: 1}, {Index: 2}}
	SortByIndex(refs)
	for i, want := range []int{1, 2, 3} {
		if refs[i].Index != want {
			t.Fatalf("refs[%d].Index = %d, want %d", i, refs[i].Index, want)
		}
	}
}
