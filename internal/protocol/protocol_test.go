package protocol

import (
	"sync"
	"testing"
	"time"
)

func TestMailboxFIFO(t *testing.T) {
	m := NewMailbox[int]()
	for i := 0; i < 100; i++ {
		m.Post(i)
	}
	select {
	case <-m.Ready():
	case <-time.After(time.Second):
		t.Fatal("Ready not signaled")
	}
	got := m.Drain()
	if len(got) != 100 {
		t.Fatalf("Drain returned %d items", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("item %d = %d", i, v)
		}
	}
	if m.Len() != 0 || len(m.Drain()) != 0 {
		t.Fatal("mailbox not empty after Drain")
	}
}

func TestMailboxConcurrentPost(t *testing.T) {
	m := NewMailbox[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				m.Post(i)
			}
		}()
	}
	wg.Wait()
	if m.Len() != 2000 {
		t.Fatalf("Len = %d", m.Len())
	}
}

func TestBuildResponseValidate(t *testing.T) {
	ok := BuildResponse{
		Tile: TileSlice{
			Key:        "src/1/0/0/1",
			Generation: 1,
			MeshData:   map[string]MeshData{"lines": {Textures: []string{"atlas"}}},
		},
		Progress: Progress{Start: true},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := map[string]BuildResponse{
		"missing key":        {Tile: TileSlice{Generation: 1}},
		"negative gen":       {Tile: TileSlice{Key: "k", Generation: -1}},
		"empty texture name": {Tile: TileSlice{Key: "k", MeshData: map[string]MeshData{"s": {Textures: []string{""}}}}},
	}
	for name, resp := range tests {
		if err := resp.Validate(); err == nil {
			t.Errorf("%s: Validate accepted an invalid response", name)
		}
	}
}

func TestSliceTextures(t *testing.T) {
	s := TileSlice{MeshData: map[string]MeshData{
		"a": {Textures: []string{"x", "x"}},
		"b": {Textures: []string{"y"}},
	}}
	if got := s.Textures(); len(got) != 3 {
		t.Fatalf("Textures = %v, duplicates must be kept", got)
	}
}
