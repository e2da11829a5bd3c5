package main

import (
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

func linebreaks(s string) template.HTML {
	s = template.HTMLEscapeString(s)

	paragraphs := strings.Split(s, "\n\n")
	var result []string

	for _, p := range paragraphs {
		if p = strings.TrimSpace(p); p != "" {
			p = strings.ReplaceAll(p, "\n", "<br>")
			result = append(result, "<p>"+p+"</p>")
		}
	}

	return template.HTML(strings.Join(result, "\n"))
}

// excerpt cuts s to at most n runes on a word boundary.
func excerpt(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	cut := string(r[:n])
	if i := strings.LastIndexAny(cut, " \n\t"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " .,;:") + "…"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("Jan 2, 2006")
}

func loadTemplates() map[string]*template.Template {
	templates := make(map[string]*template.Template)
	pages := []string{"home.html", "list.html", "detail.html", "create.html", "edit.html", "login.html", "register.html"}

	funcs := template.FuncMap{
		"linebreaks": linebreaks,
		"excerpt":    excerpt,
		"date":       formatDate,
		"pages": func(n int) []int {
			out := make([]int, n)
			for i := range out {
				out[i] = i + 1
			}
			return out
		},
	}

	for _, page := range pages {
		templates[page] = template.Must(
			template.New("").Funcs(funcs).ParseFS(templateFS,
				"templates/base.html",
				"templates/"+page,
			))
	}

	return templates
}
