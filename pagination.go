package main

import "blogclient/internal/api"

// paginate returns the posts on page (1-based), the number of pages and
// the page actually shown.
// Out-of-range pages are clamped, so deleting the last post on the final
// page lands on the one before it.
func paginate(posts []api.Post, page, perPage int) ([]api.Post, int, int) {
	if perPage <= 0 {
		perPage = 1
	}
	totalPages := (len(posts) + perPage - 1) / perPage
	if totalPages == 0 {
		return nil, 0, 1
	}

	page = max(1, min(page, totalPages))
	start := (page - 1) * perPage
	end := min(start+perPage, len(posts))
	return posts[start:end], totalPages, page
}
