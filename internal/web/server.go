package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dmorgan81/textimage/internal/controller"
	"github.com/dmorgan81/textimage/internal/log"
	"github.com/dmorgan81/textimage/internal/page"
	"github.com/dmorgan81/textimage/internal/store"
	"github.com/samber/do"
	"github.com/samber/lo"
)

type Server struct {
	newController controller.Factory
	templator     *page.Templator
	logger        *slog.Logger

	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewServer(i *do.Injector) (*Server, error) {
	return &Server{
		newController: do.MustInvoke[controller.Factory](i),
		templator:     do.MustInvoke[*page.Templator](i),
		logger:        do.MustInvoke[*slog.Logger](i),
		idleTimeout:   DefaultSessionIdle,
		now:           time.Now,
		sessions:      map[string]*session{},
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("POST /dismiss", s.handleDismiss)
	mux.HandleFunc("GET /download", s.handleDownload)
	mux.HandleFunc("POST /save", s.handleSave)
	mux.HandleFunc("GET /api/state", s.handleAPIState)
	return s.loggingMiddleware(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		logger := s.logger.WithGroup("http").With("method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(rec, r.WithContext(log.NewContext(r.Context(), logger)))
		logger.Info("request", "status", rec.status, "duration", time.Since(start).String())
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var params page.Params
	if c, ok := s.lookup(r); ok {
		params = page.FromState(c.TakeState())
	} else {
		params = page.FromState(controller.State{}, nil)
	}
	html, err := s.templator.Template(r.Context(), params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(html)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	c := s.session(w, r)
	c.UpdatePrompt(r.FormValue("prompt"))

	// Generation runs to completion even if the browser goes away.
	if err := c.Generate(context.WithoutCancel(r.Context())); err != nil {
		log.FromContextOrDiscard(r.Context()).Warn("generate failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if c, ok := s.lookup(r); ok {
		c.DismissModal()
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	saved, err := c.Download(r.Context(), &attachment{w: w})
	if err != nil {
		log.FromContextOrDiscard(r.Context()).Error("download failed", "error", err)
		return
	}
	if !saved {
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	saved, err := c.DownloadCurrentImage(r.Context())
	if err != nil {
		log.FromContextOrDiscard(r.Context()).Error("save failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	log.FromContextOrDiscard(r.Context()).Info("save requested", "saved", saved)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type stateResponse struct {
	Prompt       string  `json:"prompt"`
	Loading      bool    `json:"loading"`
	HasImage     bool    `json:"has_image"`
	ContentType  string  `json:"content_type,omitempty"`
	ModalVisible bool    `json:"modal_visible"`
	Notice       *string `json:"notice,omitempty"`
}

func (s *Server) handleAPIState(w http.ResponseWriter, r *http.Request) {
	var st controller.State
	if c, ok := s.lookup(r); ok {
		st = c.State()
	}
	resp := stateResponse{
		Prompt:       st.Prompt,
		Loading:      st.Loading,
		HasImage:     st.Image != nil,
		ModalVisible: st.ModalVisible,
	}
	if st.Image != nil {
		resp.ContentType = st.Image.ContentType
	}
	if st.Notice != nil {
		resp.Notice = lo.ToPtr(st.Notice.Message)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// attachment streams an upload to the browser as a file download.
type attachment struct {
	w http.ResponseWriter
}

func (a *attachment) Upload(_ context.Context, params store.UploadParams) error {
	h := a.w.Header()
	h.Set("Content-Type", params.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(params.Data)))
	h.Set("Content-Disposition", `attachment; filename="`+params.Name+`"`)
	_, err := a.w.Write(params.Data)
	return err
}
