package gateway

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"github.com/harun/gemchat/internal/config"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type pageRenderer struct {
	tmpl *template.Template
}

type pageData struct {
	UI config.UIConfig
}

func newPageRenderer() (*pageRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}
	return &pageRenderer{tmpl: tmpl}, nil
}

func (p *pageRenderer) render(ui config.UIConfig) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, pageData{UI: ui}); err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	return buf.Bytes(), nil
}

// handlePage serves the single chat page. History arrives over the websocket.
func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	body, err := s.page.render(s.ui)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to render page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(body)
}

func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return u.Host
}
