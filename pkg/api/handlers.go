package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cuemby/modelhost/pkg/log"
	"github.com/cuemby/modelhost/pkg/pipeline"
	"github.com/cuemby/modelhost/pkg/types"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// UserIDHeader carries the uploader's identity when the form omits userId
const UserIDHeader = "X-User-ID"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// handleUpload saves the artifact into a fresh build context and starts a
// deployment job. The response only acknowledges the upload. For an
// existing record the stored name is authoritative; a record created here
// is removed again when the job cannot be started.
func (s *Server) handleUpload(c echo.Context) error {
	ctx := c.Request().Context()

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "no file uploaded"})
	}
	if fh.Size == 0 {
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "uploaded file is empty"})
	}

	userID := c.FormValue("userId")
	if userID == "" {
		userID = c.Request().Header.Get(UserIDHeader)
	}
	name := c.FormValue("name")
	id := c.FormValue("id")

	if id != "" {
		d, err := s.opts.Store.GetDeployment(ctx, id)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, messageResponse{Message: err.Error()})
		}
		name = d.Name
		if userID == "" {
			userID = d.UserID
		}
	} else {
		if err := types.ValidateName(types.NormalizeName(name)); err != nil {
			return c.JSON(http.StatusInternalServerError, messageResponse{Message: err.Error()})
		}
		if userID == "" {
			return c.JSON(http.StatusInternalServerError, messageResponse{Message: "user id is required"})
		}
	}

	contextDir, artifactPath, err := s.saveUpload(fh)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: err.Error()})
	}

	created := false
	if id == "" {
		id = uuid.New().String()
		if err := s.opts.Store.CreateDeployment(ctx, types.NewDeployment(id, name, userID)); err != nil {
			_ = os.RemoveAll(contextDir)
			return c.JSON(http.StatusInternalServerError, messageResponse{Message: err.Error()})
		}
		created = true
	}

	err = s.opts.Pipeline.Run(ctx, pipeline.Upload{
		DeploymentID: id,
		UserID:       userID,
		Name:         name,
		ContextDir:   contextDir,
		ArtifactPath: artifactPath,
	})
	if err != nil {
		_ = os.RemoveAll(contextDir)
		if created {
			s.discardRecord(ctx, id)
		}
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, messageResponse{
		Message: "Model uploaded, deployment started",
		ID:      id,
	})
}

// discardRecord deletes a record no job was started for, so it never
// lingers in Creating
func (s *Server) discardRecord(ctx context.Context, id string) {
	if err := s.opts.Store.DeleteDeployment(context.WithoutCancel(ctx), id); err != nil && !errors.Is(err, types.ErrNotFound) {
		logger := log.WithDeploymentID(id)
		logger.Error().Err(err).Msg("Failed to discard deployment record")
	}
}

// saveUpload writes the file to {uploadDir}/{base}-{millis}/{base}-{millis}.tar.gz
func (s *Server) saveUpload(fh *multipart.FileHeader) (string, string, error) {
	stamped := fmt.Sprintf("%s-%d", uploadBase(fh.Filename), s.now().UnixMilli())
	contextDir := filepath.Join(s.opts.UploadDir, stamped)
	if err := os.MkdirAll(contextDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create build context: %w", err)
	}

	artifactPath := filepath.Join(contextDir, stamped+".tar.gz")
	if err := copyUpload(fh, artifactPath); err != nil {
		_ = os.RemoveAll(contextDir)
		return "", "", err
	}
	return contextDir, artifactPath, nil
}

func copyUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	return out.Close()
}

// uploadBase strips archive extensions and unsafe characters from a client filename
func uploadBase(filename string) string {
	base := filepath.Base(filename)
	for _, ext := range []string{".tar.gz", ".tgz", ".tar"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			base = base[:len(base)-len(ext)]
			break
		}
	}
	base = strings.Trim(unsafeFileChars.ReplaceAllString(base, "-"), ".-_")
	if base == "" || base == "." {
		return "model"
	}
	return base
}

func (s *Server) handleList(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		deployments []*types.Deployment
		err         error
	)
	if userID := c.QueryParam("userId"); userID != "" {
		deployments, err = s.opts.Store.ListDeploymentsByUser(ctx, userID)
	} else {
		deployments, err = s.opts.Store.ListDeployments(ctx)
	}
	if err != nil {
		return err
	}
	if deployments == nil {
		deployments = []*types.Deployment{}
	}
	return c.JSON(http.StatusOK, deployments)
}

func (s *Server) handleGet(c echo.Context) error {
	d, err := s.opts.Store.GetDeployment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// handleDelete removes the record and tears its resources down in the background
func (s *Server) handleDelete(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	d, err := s.opts.Store.GetDeployment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.opts.Store.DeleteDeployment(ctx, id); err != nil && !errors.Is(err, types.ErrNotFound) {
		return err
	}

	s.async(func() {
		tctx, cancel := context.WithTimeout(context.Background(), s.opts.TeardownTimeout)
		defer cancel()
		if err := s.opts.Pipeline.Teardown(tctx, d); err != nil {
			logger := log.WithDeploymentID(d.ID)
			logger.Warn().Err(err).Msg("Background teardown incomplete")
		}
	})

	return c.JSON(http.StatusOK, messageResponse{Message: "Deployment deleted", ID: id})
}
