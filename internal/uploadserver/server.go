// Package uploadserver implements the audio ingestion endpoint: it accepts
// multipart audio uploads and stores them for later labeling and training.
// It lives outside the detection loop and shares nothing with it but the
// configuration.
package uploadserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/busbell/busbell-go/internal/conf"
)

// allowedExtensions lists the audio container types accepted for upload.
var allowedExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".ogg":  true,
	".flac": true,
}

// Server is the upload HTTP service.
type Server struct {
	settings *conf.Settings
	echo     *echo.Echo
	log      *slog.Logger
}

// New builds the server and its routes.
func New(settings *conf.Settings, log *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	// The original frontend posts from another origin; restrict in
	// production deployments via a reverse proxy.
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", settings.Server.MaxUploadMB)))

	s := &Server{settings: settings, echo: e, log: log}

	e.GET("/", s.health)
	e.POST("/upload-audio/", s.uploadAudio)

	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.settings.Server.UploadPath, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Upload server listening", "addr", s.settings.Server.Listen)
		if err := s.echo.Start(s.settings.Server.Listen); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// Handler exposes the echo handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "BusBell upload service is running",
	})
}

// uploadAudio stores one multipart audio file in the upload directory.
// Filenames are flattened to their base name and deduplicated with a uuid
// suffix so a client can never overwrite an earlier submission.
func (s *Server) uploadAudio(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file field")
	}

	name := filepath.Base(fileHeader.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if name == "." || name == string(filepath.Separator) || !allowedExtensions[ext] {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", ext))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer func() { _ = src.Close() }()

	destPath := filepath.Join(s.settings.Server.UploadPath, name)
	if _, err := os.Stat(destPath); err == nil {
		stem := strings.TrimSuffix(name, ext)
		destPath = filepath.Join(s.settings.Server.UploadPath,
			fmt.Sprintf("%s-%s%s", stem, uuid.NewString()[:8], ext))
	}

	dest, err := os.Create(destPath) //nolint:gosec // G304: path is confined to the upload directory
	if err != nil {
		s.log.Error("Failed to create upload file", "path", destPath, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store file")
	}
	defer func() { _ = dest.Close() }()

	written, err := io.Copy(dest, src)
	if err != nil {
		_ = os.Remove(destPath)
		s.log.Error("Failed to write upload", "path", destPath, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store file")
	}

	s.log.Info("Stored uploaded audio", "file", filepath.Base(destPath), "bytes", written)
	return c.JSON(http.StatusOK, map[string]string{
		"message":  "Audio file uploaded successfully!",
		"filename": filepath.Base(destPath),
	})
}
