package handlers

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/Brownie44l1/qualitycast/internal/history"
	"github.com/Brownie44l1/qualitycast/internal/logger"
	"github.com/Brownie44l1/qualitycast/internal/pipeline"
	"github.com/Brownie44l1/qualitycast/internal/rank"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pageFiles = map[string]string{
	"home":    "templates/home.html",
	"history": "templates/history.html",
	"howto":   "templates/howto.html",
	"about":   "templates/about.html",
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageFiles))
	for name, file := range pageFiles {
		t, err := template.ParseFS(templatesFS, "templates/layout.html", file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

type pageData struct {
	Title       string
	Page        string
	Error       string
	Result      *resultView
	Records     []history.Record
	Classes     []string
	ChartRadius float64
}

type resultView struct {
	ID       string
	Filename string
	ImageURL template.URL
	Boxes    []percentBox
	Chart    []segment
	Cached   bool
}

type percentBox struct {
	Class   string
	Percent string
	OK      bool
}

func (h *Handler) newPage(page string) pageData {
	return pageData{
		Title:       h.opts.Title,
		Page:        page,
		ChartRadius: chartRadius,
	}
}

// Home serves the upload form and, on POST, the classification result.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := h.newPage("Home")
	switch r.Method {
	case http.MethodGet:
		h.render(w, http.StatusOK, "home", data)
	case http.MethodPost:
		filename, upload, err := h.readUpload(w, r)
		if err != nil {
			data.Error = err.Error()
			h.render(w, http.StatusBadRequest, "home", data)
			return
		}

		out, err := h.pipeline.Classify(r.Context(), filename, upload)
		if err != nil {
			status := statusFor(err)
			if status == http.StatusBadRequest {
				data.Error = "Could not read the uploaded file as an image. Supported formats: jpeg, jpg, png."
			} else {
				logger.Error("Classification failed", zap.String("filename", filename), zap.Error(err))
				data.Error = "Classification failed: " + err.Error()
			}
			h.render(w, status, "home", data)
			return
		}

		data.Result = h.resultView(out, upload)
		h.render(w, http.StatusOK, "home", data)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HistoryPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := h.newPage("QC History")
	records, err := h.pipeline.History().List(r.Context())
	if err != nil {
		logger.Error("Failed to read history", zap.Error(err))
		data.Error = "Error reading history: " + err.Error()
		h.render(w, http.StatusInternalServerError, "history", data)
		return
	}
	data.Records = records
	h.render(w, http.StatusOK, "history", data)
}

func (h *Handler) HowTo(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "howto", h.newPage("How To Use"))
}

func (h *Handler) About(w http.ResponseWriter, r *http.Request) {
	data := h.newPage("About")
	data.Classes = h.pipeline.Labels()
	h.render(w, http.StatusOK, "about", data)
}

func (h *Handler) resultView(out *pipeline.Outcome, upload []byte) *resultView {
	percentages := rank.Percentages(out.Ranked)

	var boxes []percentBox
	seen := make(map[string]bool, len(out.Ranked))
	for _, s := range out.Ranked {
		if seen[s.Class] {
			continue
		}
		seen[s.Class] = true
		boxes = append(boxes, percentBox{
			Class:   s.Class,
			Percent: fmt.Sprintf("%.1f%%", percentages[s.Class]),
			OK:      s.Class == h.opts.OKClass,
		})
	}

	return &resultView{
		ID:       out.ID,
		Filename: out.Filename,
		// The upload was decoded successfully, so the data URI only carries
		// a jpeg or png payload.
		ImageURL: template.URL("data:image/" + out.Format + ";base64," + base64.StdEncoding.EncodeToString(upload)),
		Boxes:    boxes,
		Chart:    donutSegments(out.Ranked, h.opts.OKClass),
		Cached:   out.Cached,
	}
}

func (h *Handler) render(w http.ResponseWriter, status int, page string, data pageData) {
	t, ok := h.pages[page]
	if !ok {
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.Error("Failed to render page", zap.String("page", page), zap.Error(err))
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
