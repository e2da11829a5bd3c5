package main

import (
	"strconv"
	"testing"

	"blogclient/internal/api"
)

func makePosts(n int) []api.Post {
	posts := make([]api.Post, n)
	for i := range posts {
		posts[i] = api.Post{ID: api.ID(strconv.Itoa(i + 1)), Title: "Post " + strconv.Itoa(i+1)}
	}
	return posts
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		page      int
		wantLen   int
		wantPages int
		wantPage  int
		wantFirst api.ID
	}{
		{"first page of ten", 10, 1, 6, 2, 1, "1"},
		{"second page of ten", 10, 2, 4, 2, 2, "7"},
		{"past the end clamps", 10, 5, 4, 2, 2, "7"},
		{"zero clamps to first", 10, 0, 6, 2, 1, "1"},
		{"exactly one page", 6, 1, 6, 1, 1, "1"},
		{"empty", 0, 1, 0, 0, 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, pages, page := paginate(makePosts(tt.total), tt.page, 6)
			if len(got) != tt.wantLen {
				t.Errorf("expected %d posts, got %d", tt.wantLen, len(got))
			}
			if pages != tt.wantPages {
				t.Errorf("expected %d pages, got %d", tt.wantPages, pages)
			}
			if page != tt.wantPage {
				t.Errorf("expected page %d, got %d", tt.wantPage, page)
			}
			if len(got) > 0 && got[0].ID != tt.wantFirst {
				t.Errorf("expected first post %q, got %q", tt.wantFirst, got[0].ID)
			}
		})
	}
}
