// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package dispatch

import (
	"html/template"
	"net/http"
)

// HTMLRenderer is a minimal html/template-based TemplateRenderer
// implementation, standing in for the out-of-scope templating layer
// spec.md §1 names as an external collaborator (real deployments would
// swap in a richer theme); it exists so cmd/server has a concrete,
// complete Handler to serve, following the teacher's own
// html/template-based newsletter.TemplateEngine for the choice of
// package over a third-party templating engine.
type HTMLRenderer struct {
	embed      *template.Template
	restricted *template.Template
}

const embedTemplateSrc = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta property="og:type" content="article">
<meta property="og:title" content="{{.Post.Username}}">
<meta property="og:description" content="{{.OGDescription}}">
{{if .OGImage}}<meta property="og:image" content="{{.OGImage}}">{{end}}
{{if .OGVideo}}<meta property="og:video" content="{{.OGVideo}}">{{end}}
<meta name="twitter:card" content="{{if .OGVideo}}player{{else}}summary_large_image{{end}}">
<meta property="article:author" content="{{.Post.Username}}">
<link rel="canonical" href="{{.CanonicalURL}}">
</head>
<body>
<p>{{.OGDescription}}</p>
</body>
</html>
`

const restrictedTemplateSrc = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta property="og:title" content="Content unavailable">
<meta property="og:description" content="{{.}}">
</head>
<body>
<p>{{.}}</p>
</body>
</html>
`

// NewHTMLRenderer parses the built-in embed/restricted templates.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	embedTpl, err := template.New("embed").Parse(embedTemplateSrc)
	if err != nil {
		return nil, err
	}
	restrictedTpl, err := template.New("restricted").Parse(restrictedTemplateSrc)
	if err != nil {
		return nil, err
	}
	return &HTMLRenderer{embed: embedTpl, restricted: restrictedTpl}, nil
}

// RenderEmbed renders the embed page's Open Graph / Twitter Card meta tags.
func (h *HTMLRenderer) RenderEmbed(w http.ResponseWriter, data EmbedViewData) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return h.embed.Execute(w, data)
}

// RenderRestricted renders the 403 error page carrying the ruling reason.
func (h *HTMLRenderer) RenderRestricted(w http.ResponseWriter, reason string) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return h.restricted.Execute(w, reason)
}
