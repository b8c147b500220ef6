package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.miragespace.co/esmodule"
	"go.miragespace.co/esmodule/rewrite"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxBodySize = 8 << 20

type Options struct {
	Logger        *zap.Logger
	Runtime       *esmodule.Runtime
	Rewriter      *rewrite.Rewriter
	LoaderSymbol  string
	ExportsSymbol string
}

type Server struct {
	logger        *zap.Logger
	runtime       *esmodule.Runtime
	rewriter      *rewrite.Rewriter
	loaderSymbol  string
	exportsSymbol string
}

func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if opts.Runtime == nil {
		return nil, fmt.Errorf("runtime cannot be nil")
	}
	if opts.Rewriter == nil {
		return nil, fmt.Errorf("rewriter cannot be nil")
	}
	if opts.LoaderSymbol == "" {
		opts.LoaderSymbol = esmodule.DefaultLoaderSymbol
	}
	if opts.ExportsSymbol == "" {
		opts.ExportsSymbol = esmodule.DefaultExportsSymbol
	}

	return &Server{
		logger:        opts.Logger,
		runtime:       opts.Runtime,
		rewriter:      opts.Rewriter,
		loaderSymbol:  opts.LoaderSymbol,
		exportsSymbol: opts.ExportsSymbol,
	}, nil
}

func (s *Server) Router() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Mount("/debug", middleware.Profiler())
	router.Post("/rewrite", s.rewrite)
	router.Post("/reload", s.reload)
	router.Post("/call", s.call)
	router.Get("/exports", s.exports)
	return router
}

func (s *Server) rewrite(w http.ResponseWriter, r *http.Request) {
	source, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Failed to read source from body: %v", err)
		return
	}

	loader := s.loaderSymbol
	if v := r.URL.Query().Get("loader"); v != "" {
		loader = v
	}
	exports := s.exportsSymbol
	if v := r.URL.Query().Get("exports"); v != "" {
		exports = v
	}

	out, err := s.rewriter.Rewrite(string(source), loader, exports)
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/javascript")
	fmt.Fprint(w, out)
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	var form *multipart.Reader
	form, err := r.MultipartReader()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "Request is not multipart")
		return
	}

	var p *multipart.Part
	p, err = form.NextPart()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, err)
		return
	}

	if p.FormName() != "file" {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "Expecting \"file\" field in request")
		return
	}

	source, err := io.ReadAll(io.LimitReader(p, maxBodySize))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Failed to read module from body: %v", err)
		return
	}

	interrupt := r.URL.Query().Get("interrupt") == "1"
	if err := s.runtime.LoadModule(p.FileName(), string(source), interrupt); err != nil {
		s.logger.Error("Module reload failed", zap.String("module", p.FileName()), zap.Error(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprintf(w, "Failed to load module: %v", err)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "Module loaded")
}

type callResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) call(w http.ResponseWriter, r *http.Request) {
	code, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, callResponse{Error: err.Error()})
		return
	}

	var result any
	if r.URL.Query().Get("async") == "1" {
		result, err = s.runtime.CallAsync(r.Context(), string(code))
	} else {
		result, err = s.runtime.Call(r.Context(), string(code))
	}

	switch {
	case errors.Is(err, esmodule.ErrRuntimeNotReady):
		writeJSON(w, http.StatusServiceUnavailable, callResponse{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusUnprocessableEntity, callResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, callResponse{Result: result})
	}
}

func (s *Server) exports(w http.ResponseWriter, r *http.Request) {
	exports, err := s.runtime.Exports(r.Context())
	if errors.Is(err, esmodule.ErrRuntimeNotReady) {
		writeJSON(w, http.StatusServiceUnavailable, callResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, callResponse{Error: err.Error()})
		return
	}

	values := make(map[string]any, len(exports))
	for name, v := range exports {
		if _, err := json.Marshal(v); err != nil {
			v = unserializable
		}
		values[name] = v
	}
	writeJSON(w, http.StatusOK, values)
}

const unserializable = "[unserializable]"

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusUnprocessableEntity
		b, _ = json.Marshal(callResponse{Error: fmt.Sprintf("result is not serializable: %v", err)})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
