// Package server exposes the document service over HTTP (chi) and MCP.
// Document mutations go through per-document editing sessions so the
// debounced autosave and display-ref lifecycle apply uniformly to every
// transport.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/bundle"
	"github.com/skaldworks/skald/docstore"
	"github.com/skaldworks/skald/doctree"
	"github.com/skaldworks/skald/session"
	"github.com/skaldworks/skald/site"
)

// Server holds the service dependencies and the open-session registry.
type Server struct {
	cfg    Config
	docs   docstore.Store
	blobs  blobstore.Store
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// New creates a Server.
func New(cfg Config, docs docstore.Store, blobs blobstore.Store, logger *slog.Logger) *Server {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		docs:     docs,
		blobs:    blobs,
		logger:   logger,
		sessions: make(map[string]*session.Session),
	}
}

// Close flushes and closes every open session.
func (s *Server) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if err := sess.Close(ctx); err != nil {
			s.logger.Warn("session close failed", "document", id, "error", err)
		}
		delete(s.sessions, id)
	}
}

// session returns the open session for the document, opening one on first
// use.
func (s *Server) session(ctx context.Context, documentID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[documentID]; ok {
		return sess, nil
	}
	sess, err := session.Open(ctx, session.Config{
		Docs:     s.docs,
		Blobs:    s.blobs,
		Debounce: s.cfg.Autosave,
		Logger:   s.logger,
	}, documentID)
	if err != nil {
		return nil, err
	}
	s.sessions[documentID] = sess
	return sess, nil
}

// dropSession removes a session from the registry without closing it; used
// after DeleteDocument, which closes the session itself.
func (s *Server) dropSession(documentID string) {
	s.mu.Lock()
	delete(s.sessions, documentID)
	s.mu.Unlock()
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents", s.handleCreateDocument)
		r.Route("/documents/{docID}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Patch("/", s.handleUpdateDocument)
			r.Delete("/", s.handleDeleteDocument)

			r.Post("/sections", s.handleInsertSection)
			r.Route("/sections/{sectionID}", func(r chi.Router) {
				r.Patch("/", s.handleUpdateSection)
				r.Delete("/", s.handleDeleteSection)
				r.Post("/move", s.handleMoveSection)

				r.Post("/blocks", s.handleInsertBlock)
				r.Post("/media", s.handleUploadMedia)
				r.Route("/blocks/{blockID}", func(r chi.Router) {
					r.Put("/", s.handleUpdateBlock)
					r.Delete("/", s.handleDeleteBlock)
					r.Post("/move", s.handleMoveBlock)
				})
			})

			r.Get("/export/site", s.handleExportSite)
			r.Get("/export/project", s.handleExportProject)
			r.Get("/export/markdown", s.handleExportMarkdown)
		})

		r.Get("/backup", s.handleBackupExport)
		r.Post("/restore", s.handleBackupRestore)
	})

	r.Get("/assets/{assetID}/raw", s.handleServeAsset)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// errStatus maps service errors to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, blobstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, doctree.ErrLastSection), errors.Is(err, bundle.ErrInvalidBundle):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) ownerFrom(r *http.Request) string {
	if owner := r.URL.Query().Get("owner"); owner != "" {
		return owner
	}
	return s.cfg.OwnerID
}

// --- documents ---

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.ListByOwner(r.Context(), s.ownerFrom(r))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	type item struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		LastModified string `json:"lastModified"`
		Sections     int    `json:"sections"`
	}
	out := make([]item, 0, len(docs))
	for _, d := range docs {
		out = append(out, item{
			ID:           d.ID,
			Title:        d.Title,
			LastModified: d.LastModified.Format("2006-01-02T15:04:05Z07:00"),
			Sections:     doctree.CountSections(d.Content.Sections),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Owner string `json:"ownerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Owner == "" {
		req.Owner = s.cfg.OwnerID
	}
	doc := doctree.NewDocument(req.Owner, req.Title)
	if err := s.docs.Save(r.Context(), doc); err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Document())
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.session(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	sess.SetTitle(req.Title)
	writeJSON(w, http.StatusOK, sess.Document())
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	sess, err := s.session(r.Context(), docID)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	if err := sess.DeleteDocument(r.Context()); err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	s.dropSession(docID)
	w.WriteHeader(http.StatusNoContent)
}

// --- sections ---

func (s *Server) handleInsertSection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string `json:"title"`
		ParentID string `json:"parentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.session(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	sec := sess.InsertSection(req.Title, req.ParentID)
	writeJSON(w, http.StatusCreated, sec)
}

func (s *Server) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.session(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	sess.UpdateSectionTitle(chi.URLParam(r, "sectionID"), req.Title)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSection(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	if err := sess.DeleteSection(r.Context(), chi.URLParam(r, "sectionID")); err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMoveSection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewParentID string `json:"newParentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.session(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	if !sess.MoveSection(chi.URLParam(r, "sectionID"), req.NewParentID) {
		writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("move refused"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- blocks ---

func (s *Server) handleInsertBlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Block        doctree.Block `json:"block"`
		AfterBlockID string        `json:"afterBlockId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Block.ID == "" {
		b := doctree.NewBlock(req.Block.Type)
		b.Content = req.Block.Content
		b.NavItems = req.Block.NavItems
		if req.Block.ImageSize != "" {
			b.ImageSize = req.Block.ImageSize
		}
		if req.Block.BulletStyle != "" {
			b.BulletStyle = req.Block.BulletStyle
		}
		if req.Block.TableData != nil {
			b.TableData = req.Block.TableData
		}
		req.Block = b
	}
	sess, err := s.session(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	sess.InsertBlock(chi.URLParam(r, "sectionID"), req.Block, req.AfterBlockID)
	writeJSON(w, http.StatusCreated, req.Block)
}

func (s *Server) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	var b doctree.Block
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	b.ID = chi.URLParam(r, "blockID")
	sess, err := s.session(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	sess.UpdateBlock(chi.URLParam(r, "sectionID"), b)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	sess.DeleteBlock(r.Context(), chi.URLParam(r, "sectionID"), chi.URLParam(r, "blockID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMoveBlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ToIndex int `json:"toIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.session(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	sess.MoveBlock(chi.URLParam(r, "sectionID"), chi.URLParam(r, "blockID"), req.ToIndex)
	w.WriteHeader(http.StatusNoContent)
}

// --- media ---

// handleUploadMedia accepts a multipart upload. Images go through the
// two-phase upload machine (the size field commits it in the same
// request); pdf and video use the single-phase path.
func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	kind := doctree.BlockType(r.FormValue("kind"))
	mimeType := header.Header.Get("Content-Type")
	sess, err := s.session(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}

	var block doctree.Block
	switch kind {
	case doctree.BlockImage:
		up, err := sess.Hydrator().BeginImageUpload(r.Context(), header.Filename, mimeType, data)
		if err != nil {
			writeError(w, errStatus(err), err)
			return
		}
		size := doctree.ImageSize(r.FormValue("size"))
		if size == "" {
			size = doctree.SizeMedium
		}
		block, err = up.Commit(size)
		if err != nil {
			writeError(w, errStatus(err), err)
			return
		}
	case doctree.BlockPDF, doctree.BlockVideo:
		block, err = sess.Hydrator().StoreMedia(r.Context(), kind, header.Filename, mimeType, data)
		if err != nil {
			writeError(w, errStatus(err), err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported media kind %q", kind))
		return
	}

	sess.InsertBlock(chi.URLParam(r, "sectionID"), block, r.FormValue("afterBlockId"))
	writeJSON(w, http.StatusCreated, block)
}

func (s *Server) handleServeAsset(w http.ResponseWriter, r *http.Request) {
	asset, data, err := s.blobs.Get(r.Context(), chi.URLParam(r, "assetID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	w.Header().Set("Content-Type", asset.Type)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `inline; filename="`+asset.Name+`"`)
	_, _ = w.Write(data)
}

// --- exports ---

func (s *Server) handleExportSite(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Get(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="site.zip"`)
	exporter := site.New(site.Config{Blobs: s.blobs, Logger: s.logger})
	if _, err := exporter.Export(r.Context(), doc, w); err != nil {
		s.logger.Error("site export failed", "document", doc.ID, "error", err)
	}
}

func (s *Server) handleExportProject(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Get(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="project.zip"`)
	if err := bundle.ExportProject(r.Context(), doc, s.blobs, w); err != nil {
		s.logger.Error("project export failed", "document", doc.ID, "error", err)
	}
}

func (s *Server) handleExportMarkdown(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Get(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	md, err := bundle.ExportMarkdown(doc)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write(md)
}

// --- backup ---

func (s *Server) handleBackupExport(w http.ResponseWriter, r *http.Request) {
	backup, err := bundle.Export(r.Context(), s.docs, s.blobs, s.ownerFrom(r))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="backup.json"`)
	if err := bundle.Write(w, backup); err != nil {
		s.logger.Error("backup write failed", "error", err)
	}
}

func (s *Server) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	backup, err := bundle.Read(r.Body)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	report, err := bundle.Restore(r.Context(), backup, s.docs, s.blobs, s.ownerFrom(r))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
