package main

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"blogclient/internal/api"
)

const notAuthorizedToDelete = "You are not authorized to delete this post"

// pageData holds the values every page's layout needs.
func (b *Blog) pageData(w http.ResponseWriter, r *http.Request, title string) map[string]any {
	sess := b.session(r)
	return map[string]any{
		"Title":           title,
		"IsAuthenticated": sess.Authenticated(),
		"Username":        sess.Username,
		"CSRFToken":       b.ensureCSRFToken(w, r),
	}
}

func (b *Blog) render(w http.ResponseWriter, page string, status int, data map[string]any) {
	var buf bytes.Buffer
	if err := b.templates[page].ExecuteTemplate(&buf, "base", data); err != nil {
		b.log.Error("rendering template", "page", page, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// NotFound sends unknown paths home.
func (b *Blog) NotFound(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

func (b *Blog) Home(w http.ResponseWriter, r *http.Request) {
	data := b.pageData(w, r, "Home")

	page, err := b.api.ListPosts(r.Context())
	if err != nil {
		if sessionExpired(w, r, err) {
			return
		}
		b.log.Warn("fetching posts", "error", err, "request_id", api.RequestID(r.Context()))
		data["Error"] = "Failed to fetch posts"
		b.render(w, "home.html", http.StatusBadGateway, data)
		return
	}

	data["Posts"] = page.Results
	b.render(w, "home.html", http.StatusOK, data)
}

func (b *Blog) BlogList(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		page = 1
	}
	b.renderList(w, r, page, http.StatusOK, "")
}

// renderList shows one page of the post list, with msg as an error banner
// when set.
func (b *Blog) renderList(w http.ResponseWriter, r *http.Request, page, status int, msg string) {
	data := b.pageData(w, r, "Blog")

	list, err := b.api.ListPosts(r.Context())
	if err != nil {
		if sessionExpired(w, r, err) {
			return
		}
		b.log.Warn("fetching posts", "error", err, "request_id", api.RequestID(r.Context()))
		data["Error"] = "Failed to fetch posts"
		b.render(w, "list.html", http.StatusBadGateway, data)
		return
	}

	posts, totalPages, page := paginate(list.Results, page, b.perPage)
	data["Posts"] = posts
	data["Total"] = len(list.Results)
	data["Page"] = page
	data["TotalPages"] = totalPages
	if msg != "" {
		data["Error"] = msg
	}
	b.render(w, "list.html", status, data)
}

func (b *Blog) Detail(w http.ResponseWriter, r *http.Request) {
	post, err := b.api.GetPost(r.Context(), api.ID(r.PathValue("id")))
	if err != nil {
		if sessionExpired(w, r, err) {
			return
		}
		status := http.StatusBadGateway
		if api.IsNotFound(err) {
			status = http.StatusNotFound
		}
		b.renderDetail(w, r, nil, status, "Failed to fetch post")
		return
	}

	b.renderDetail(w, r, post, http.StatusOK, "")
}

func (b *Blog) renderDetail(w http.ResponseWriter, r *http.Request, post *api.Post, status int, msg string) {
	title := "Post"
	if post != nil {
		title = post.Title
	}
	data := b.pageData(w, r, title)
	data["Post"] = post
	data["IsAuthor"] = post != nil && isAuthor(data, post)
	if msg != "" {
		data["Error"] = msg
	}
	b.render(w, "detail.html", status, data)
}

func isAuthor(data map[string]any, post *api.Post) bool {
	username, _ := data["Username"].(string)
	authed, _ := data["IsAuthenticated"].(bool)
	return authed && username != "" && username == post.Author.Username
}

func postFormValues(r *http.Request) postForm {
	return postForm{
		Title:   strings.TrimSpace(r.FormValue("title")),
		Content: strings.TrimSpace(r.FormValue("content")),
	}
}

func (b *Blog) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		data := b.pageData(w, r, "New Post")
		data["Form"] = postForm{}
		b.render(w, "create.html", http.StatusOK, data)
		return
	}

	if !parseFormWithCSRF(w, r) {
		return
	}

	form := postFormValues(r)
	fail := func(status int, msg string) {
		data := b.pageData(w, r, "New Post")
		data["Form"] = form
		data["Error"] = msg
		b.render(w, "create.html", status, data)
	}

	in := api.PostInput{Title: form.Title, Content: form.Content}
	if err := in.Validate(); err != nil {
		fail(http.StatusBadRequest, "Title and content are required")
		return
	}

	if _, err := b.api.CreatePost(r.Context(), in); err != nil {
		if sessionExpired(w, r, err) {
			return
		}
		b.log.Warn("creating post", "error", err, "request_id", api.RequestID(r.Context()))
		fail(http.StatusBadGateway, "Failed to create post")
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (b *Blog) Edit(w http.ResponseWriter, r *http.Request) {
	id := api.ID(r.PathValue("id"))

	if r.Method == http.MethodGet {
		data := b.pageData(w, r, "Edit Post")

		post, err := b.api.GetPost(r.Context(), id)
		if err != nil {
			if sessionExpired(w, r, err) {
				return
			}
			status := http.StatusBadGateway
			if api.IsNotFound(err) {
				status = http.StatusNotFound
			}
			data["Error"] = "Failed to fetch post"
			b.render(w, "edit.html", status, data)
			return
		}

		data["Title"] = fmt.Sprintf("Editing %q", post.Title)
		data["PostID"] = post.ID
		data["Form"] = postForm{Title: post.Title, Content: post.Content}
		b.render(w, "edit.html", http.StatusOK, data)
		return
	}

	if !parseFormWithCSRF(w, r) {
		return
	}

	form := postFormValues(r)
	fail := func(status int, msg string) {
		data := b.pageData(w, r, "Edit Post")
		data["PostID"] = id
		data["Form"] = form
		data["Error"] = msg
		b.render(w, "edit.html", status, data)
	}

	in := api.PostInput{Title: form.Title, Content: form.Content}
	if err := in.Validate(); err != nil {
		fail(http.StatusBadRequest, "Title and content are required")
		return
	}

	if _, err := b.api.UpdatePost(r.Context(), id, in); err != nil {
		if sessionExpired(w, r, err) {
			return
		}
		b.log.Warn("updating post", "id", id, "error", err, "request_id", api.RequestID(r.Context()))
		fail(http.StatusBadGateway, "Failed to update post")
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Delete removes a post. Forms on the blog list send the page they were on
// and return there; the detail page returns home.
func (b *Blog) Delete(w http.ResponseWriter, r *http.Request) {
	if !parseFormWithCSRF(w, r) {
		return
	}

	id := api.ID(r.PathValue("id"))
	fromPage, _ := strconv.Atoi(r.FormValue("page"))

	fail := func(post *api.Post, status int, msg string) {
		if fromPage > 0 {
			b.renderList(w, r, fromPage, status, msg)
			return
		}
		b.renderDetail(w, r, post, status, msg)
	}

	post, err := b.api.GetPost(r.Context(), id)
	if err != nil {
		if sessionExpired(w, r, err) {
			return
		}
		b.log.Warn("fetching post before delete", "id", id, "error", err, "request_id", api.RequestID(r.Context()))
		fail(nil, http.StatusBadGateway, "Failed to delete post")
		return
	}

	if sess := b.session(r); sess.Username == "" || sess.Username != post.Author.Username {
		fail(post, http.StatusForbidden, notAuthorizedToDelete)
		return
	}

	if err := b.api.DeletePost(r.Context(), id); err != nil {
		if sessionExpired(w, r, err) {
			return
		}
		if api.IsForbidden(err) {
			fail(post, http.StatusForbidden, notAuthorizedToDelete)
			return
		}
		b.log.Warn("deleting post", "id", id, "error", err, "request_id", api.RequestID(r.Context()))
		fail(post, http.StatusBadGateway, "Failed to delete post")
		return
	}

	if fromPage > 0 {
		http.Redirect(w, r, fmt.Sprintf("/blog?page=%d", fromPage), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
