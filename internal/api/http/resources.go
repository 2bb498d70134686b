package http

import (
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/storage"
)

const maxUploadBytes = 20 << 20

// POST /lessons/{lessonID}/resources  multipart: file=<blob>, name=<label>
func UploadResourceHandler(store lessonStore, blobs storage.BlobStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := managedLesson(w, r, log, store)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeError(w, r, log, course.Validation("file exceeds %d MiB", maxUploadBytes>>20))
				return
			}
			writeError(w, r, log, course.Validation("file required"))
			return
		}
		defer f.Close()

		filename := safeName(hdr.Filename)
		key := path.Join("lessons", l.ID, uuid.NewString()+"-"+filename)
		key, err = blobs.Put(r.Context(), key, f)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		name := strings.TrimSpace(r.FormValue("name"))
		if name == "" {
			name = filename
		}
		res := course.Resource{Name: name, URL: blobs.URL(key)}
		l.Resources = append(l.Resources, res)
		if _, err := store.UpdateLesson(r.Context(), l); err != nil {
			if derr := blobs.Delete(r.Context(), key); derr != nil {
				log.Warn("orphaned upload", "key", key, "error", derr)
			}
			writeError(w, r, log, err)
			return
		}
		log.Info("lesson resource uploaded", "lesson_id", l.ID, "key", key, "size", hdr.Size)
		writeJSON(w, http.StatusCreated, res)
	}
}

func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." || name == ".." {
		return "upload.bin"
	}
	return name
}

// GET /files/*  serves stored blobs.
func FilesHandler(blobs storage.BlobStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := blobs.Get(r.Context(), key)
		switch {
		case errors.Is(err, fs.ErrNotExist), errors.Is(err, storage.ErrInvalidKey):
			writeError(w, r, log, course.NotFound("file"))
			return
		case err != nil:
			writeError(w, r, log, err)
			return
		}
		defer rc.Close()
		ct := mime.TypeByExtension(path.Ext(key))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		_, _ = io.Copy(w, rc)
	}
}
