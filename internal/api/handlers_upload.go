package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "github.com/civicdesk/server/pkg/logger"
)

const maxUploadBytes = 32 << 20 // 32MB

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".docx": true,
	".doc":  true,
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		badRequest(w, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file field is required")
		return
	}
	defer file.Close()

	namespace := r.FormValue("namespace")
	if namespace == "" {
		namespace = "default"
	}

	// extension whitelist is enforced before anything touches storage
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		badRequest(w, fmt.Sprintf("unsupported file type %q; supported: .pdf, .txt, .docx, .doc", ext))
		return
	}

	tempDir := filepath.Join(s.cfg.UploadDir, namespace)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		writeError(w, err)
		return
	}

	timestamp := time.Now().Format("20060102_150405")
	tempPath := filepath.Join(tempDir, timestamp+"_"+filepath.Base(header.Filename))
	dst, err := os.Create(tempPath)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(tempPath)
		writeError(w, err)
		return
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tempPath)
		writeError(w, err)
		return
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil {
			logx.Warn().Err(err).Str("path", tempPath).Msg("could not clean up temporary upload")
		}
	}()

	summary, err := s.ingestor.IngestFile(r.Context(), tempPath, namespace)
	if err != nil {
		logx.Error().Err(err).Str("filename", header.Filename).Msg("document ingestion failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":             "document processing failed",
			"processing_result": summary,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":           "file uploaded and processed",
		"filename":          header.Filename,
		"namespace":         namespace,
		"collection_name":   summary.CollectionName,
		"processing_result": summary,
		"timestamp":         timestamp,
	})
}
