// Package api is the journal web server
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"

	"github.com/aouyang1/photojournal/api/models"
	"github.com/aouyang1/photojournal/api/web/templates"
	"github.com/aouyang1/photojournal/intake"
	"github.com/aouyang1/photojournal/state"
	"github.com/aouyang1/photojournal/store"
	"github.com/aouyang1/photojournal/syncstore"
)

const (
	defaultLoadWait = 5 * time.Second
	// room for the multipart envelope around the file itself
	multipartOverhead = 1 << 20
	adminRealm        = `Basic realm="journal admin"`
)

// SaveTimes reports when a key was last written to the local cache.
type SaveTimes interface {
	UpdatedAt(ctx context.Context, key store.Key) (time.Time, error)
}

type WebServerConfig struct {
	Controller     *state.Controller
	Pipeline       *intake.Pipeline
	Status         *StatusMonitor
	// Local is optional. When set, the status response carries the local save times.
	Local          SaveTimes
	MaxUploadBytes int64
	// LoadWait bounds how long an admin request waits for the initial load before it is
	// refused.
	LoadWait time.Duration
}

type WebServer struct {
	router     *gin.Engine
	server     *http.Server
	controller *state.Controller
	pipeline   *intake.Pipeline
	status     *StatusMonitor
	local      SaveTimes

	maxUpload int64
	loadWait  time.Duration
}

func NewWebServer(config WebServerConfig) (*WebServer, error) {
	if config.Controller == nil {
		return nil, errors.New("no controller provided for web server")
	}
	if config.Pipeline == nil {
		return nil, errors.New("no intake pipeline provided for web server")
	}
	if config.Status == nil {
		return nil, errors.New("no status monitor provided for web server")
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = intake.DefaultMaxUploadBytes
	}
	if config.LoadWait <= 0 {
		config.LoadWait = defaultLoadWait
	}

	ws := &WebServer{
		router:     gin.Default(),
		controller: config.Controller,
		pipeline:   config.Pipeline,
		status:     config.Status,
		local:      config.Local,
		maxUpload:  config.MaxUploadBytes,
		loadWait:   config.LoadWait,
	}
	ws.setupRoutes()
	return ws, nil
}

func (ws *WebServer) setupRoutes() {
	ws.router.GET("/heartbeat", ws.handleHeartbeat)
	ws.router.GET("/photos", ws.handleListPhotos)
	ws.router.GET("/photos/:id", ws.handleGetPhoto)
	ws.router.GET("/photos/:id/image", ws.handlePhotoImage)
	ws.router.GET("/contact", ws.handleGetContact)
	ws.router.GET("/ui/gallery", ws.handleUIGallery)
	ws.router.GET("/ui/contact", ws.handleUIContact)

	ws.router.POST("/admin/login", ws.handleLogin)

	admin := ws.router.Group("/", ws.requireAdmin)
	admin.POST("/admin/photos", ws.handleUpload)
	admin.PATCH("/admin/photos/:id", ws.handleUpdatePhoto)
	admin.DELETE("/admin/photos/:id", ws.handleDeletePhoto)
	admin.POST("/admin/photos/:id/move/:direction", ws.handleMovePhoto)
	admin.PUT("/admin/contact", ws.handleUpdateContact)
	admin.POST("/admin/contact/images", ws.handleAddContactImage)
	admin.DELETE("/admin/contact/images/:index", ws.handleRemoveContactImage)
	admin.PUT("/admin/password", ws.handleUpdatePassword)
	admin.GET("/admin/status", ws.handleStatus)
	admin.POST("/admin/sync/push", ws.handlePush)
	admin.GET("/ui/admin/photos", ws.handleUIAdminPhotos)
	admin.GET("/ui/admin/contact", ws.handleUIAdminContact)
	admin.GET("/ui/admin/banner", ws.handleUIBanner)
}

func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start blocks serving on addr until Shutdown is called.
func (ws *WebServer) Start(addr string) error {
	ws.server = &http.Server{
		Addr:              addr,
		Handler:           ws.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("starting web server", "addr", addr)
	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// waitLoaded reports whether the app state finished loading within the load wait.
func (ws *WebServer) waitLoaded(c *gin.Context) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ws.loadWait)
	defer cancel()
	return ws.controller.WaitLoaded(ctx) == nil
}

// requireAdmin checks basic auth against the stored credentials, which are only known once
// the app state has loaded.
func (ws *WebServer) requireAdmin(c *gin.Context) {
	if !ws.waitLoaded(c) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: state.ErrNotLoaded.Error()})
		return
	}
	user, pass, ok := c.Request.BasicAuth()
	if !ok || !ws.controller.Authenticate(user, pass) {
		c.Header("WWW-Authenticate", adminRealm)
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid credentials"})
		return
	}
	c.Set(gin.AuthUserKey, user)
	c.Next()
}

func isHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

func renderHTML(c *gin.Context, code int, component templ.Component) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(code)
	if err := component.Render(c.Request.Context(), c.Writer); err != nil {
		slog.Error("failed to render fragment", "path", c.FullPath(), "error", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, state.ErrPhotoNotFound), errors.Is(err, state.ErrImageNotFound):
		return http.StatusNotFound
	case errors.Is(err, state.ErrPasswordTooShort), errors.Is(err, state.ErrInvalidDirection):
		return http.StatusBadRequest
	case errors.Is(err, state.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, state.ErrRemoteUnavailable):
		return http.StatusConflict
	case errors.Is(err, intake.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, intake.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, intake.ErrUndecodable):
		return http.StatusUnprocessableEntity
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	if isHTMX(c) {
		c.String(code, "Error: "+err.Error())
		return
	}
	c.JSON(code, models.ErrorResponse{Error: err.Error()})
}

func (ws *WebServer) handleHeartbeat(c *gin.Context) {
	c.JSON(http.StatusOK, models.HeartbeatResponse{Status: "ok", Loaded: ws.controller.Loaded()})
}

func (ws *WebServer) handleListPhotos(c *gin.Context) {
	if !ws.controller.Loaded() {
		writeError(c, state.ErrNotLoaded)
		return
	}
	photos := ws.controller.Photos()
	c.JSON(http.StatusOK, models.PhotoListResponse{Photos: photos, Total: len(photos)})
}

func (ws *WebServer) handleGetPhoto(c *gin.Context) {
	photo, ok := ws.controller.Photo(c.Param("id"))
	if !ok {
		writeError(c, fmt.Errorf("%w: %s", state.ErrPhotoNotFound, c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, photo)
}

func (ws *WebServer) handlePhotoImage(c *gin.Context) {
	photo, ok := ws.controller.Photo(c.Param("id"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	mime, data, err := decodeDataURL(photo.URL)
	if err != nil {
		slog.Warn("unable to decode photo payload", "id", photo.ID, "error", err)
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, mime, data)
}

// decodeDataURL splits a base64 data URL into its media type and payload.
func decodeDataURL(url string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, errors.New("not a data url")
	}
	mime, payload, ok := strings.Cut(rest, ";base64,")
	if !ok || mime == "" {
		return "", nil, errors.New("data url is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode payload: %w", err)
	}
	return mime, data, nil
}

func contactResponse(contact store.Contact) models.ContactResponse {
	return models.ContactResponse{HTML: contact.HTML, Images: contact.Images}
}

func (ws *WebServer) handleGetContact(c *gin.Context) {
	c.JSON(http.StatusOK, contactResponse(ws.controller.Contact()))
}

func (ws *WebServer) handleUIGallery(c *gin.Context) {
	renderHTML(c, http.StatusOK, templates.Gallery(ws.controller.Photos()))
}

func (ws *WebServer) handleUIContact(c *gin.Context) {
	renderHTML(c, http.StatusOK, templates.Contact(ws.controller.Contact(), false))
}

func (ws *WebServer) handleUIAdminPhotos(c *gin.Context) {
	renderHTML(c, http.StatusOK, templates.AdminGallery(ws.controller.Photos()))
}

func (ws *WebServer) handleUIAdminContact(c *gin.Context) {
	renderHTML(c, http.StatusOK, templates.Contact(ws.controller.Contact(), true))
}

func (ws *WebServer) handleUIBanner(c *gin.Context) {
	renderHTML(c, http.StatusOK, templates.Banner(ws.status.Latest(c.Request.Context())))
}

func (ws *WebServer) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("Invalid request body: %v", err)})
		return
	}
	if !ws.waitLoaded(c) {
		writeError(c, state.ErrNotLoaded)
		return
	}
	if !ws.controller.Authenticate(req.User, req.Pass) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Logged in"})
}

// formFile opens the "file" part of a multipart body capped at the upload limit.
func (ws *WebServer) formFile(c *gin.Context) (*multipart.FileHeader, multipart.File, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, ws.maxUpload+multipartOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, intake.ErrTooLarge
		}
		return nil, nil, fmt.Errorf("no file provided: %w", err)
	}
	f, err := header.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open upload: %w", err)
	}
	return header, f, nil
}

func (ws *WebServer) handleUpload(c *gin.Context) {
	header, f, err := ws.formFile(c)
	if err != nil {
		if !errors.Is(err, intake.ErrTooLarge) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	defer f.Close()

	photo, err := ws.pipeline.Intake(c.Request.Context(), header.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}
	slog.Info("photo uploaded", "id", photo.ID, "name", header.Filename)

	if isHTMX(c) {
		renderHTML(c, http.StatusOK, templates.AdminGallery(ws.controller.Photos()))
		return
	}
	c.JSON(http.StatusCreated, photo)
}

func (ws *WebServer) handleUpdatePhoto(c *gin.Context) {
	var req models.UpdatePhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("Invalid request body: %v", err)})
		return
	}

	id := c.Param("id")
	patch := state.PhotoPatch{DateText: req.DateText, Description: req.Description}
	if err := ws.controller.UpdatePhoto(c.Request.Context(), id, patch); err != nil {
		writeError(c, err)
		return
	}
	photo, _ := ws.controller.Photo(id)
	c.JSON(http.StatusOK, photo)
}

func (ws *WebServer) handleDeletePhoto(c *gin.Context) {
	id := c.Param("id")
	if err := ws.controller.DeletePhoto(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	slog.Info("photo deleted", "id", id)

	if isHTMX(c) {
		renderHTML(c, http.StatusOK, templates.AdminGallery(ws.controller.Photos()))
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Photo deleted successfully"})
}

func (ws *WebServer) handleMovePhoto(c *gin.Context) {
	dir, err := state.ParseDirection(c.Param("direction"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := ws.controller.MovePhoto(c.Request.Context(), c.Param("id"), dir); err != nil {
		writeError(c, err)
		return
	}

	photos := ws.controller.Photos()
	if isHTMX(c) {
		renderHTML(c, http.StatusOK, templates.AdminGallery(photos))
		return
	}
	c.JSON(http.StatusOK, models.PhotoListResponse{Photos: photos, Total: len(photos)})
}

func (ws *WebServer) handleUpdateContact(c *gin.Context) {
	var req models.UpdateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("Invalid request body: %v", err)})
		return
	}
	if err := ws.controller.SetContactHTML(c.Request.Context(), req.HTML); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, contactResponse(ws.controller.Contact()))
}

func (ws *WebServer) handleAddContactImage(c *gin.Context) {
	header, f, err := ws.formFile(c)
	if err != nil {
		if !errors.Is(err, intake.ErrTooLarge) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	defer f.Close()

	img, err := ws.pipeline.Encode(header.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := ws.controller.AddContactImage(c.Request.Context(), img.DataURL()); err != nil {
		writeError(c, err)
		return
	}

	contact := ws.controller.Contact()
	if isHTMX(c) {
		renderHTML(c, http.StatusOK, templates.Contact(contact, true))
		return
	}
	c.JSON(http.StatusCreated, contactResponse(contact))
}

func (ws *WebServer) handleRemoveContactImage(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid index parameter"})
		return
	}
	if err := ws.controller.RemoveContactImage(c.Request.Context(), index); err != nil {
		writeError(c, err)
		return
	}

	contact := ws.controller.Contact()
	if isHTMX(c) {
		renderHTML(c, http.StatusOK, templates.Contact(contact, true))
		return
	}
	c.JSON(http.StatusOK, contactResponse(contact))
}

func (ws *WebServer) handleUpdatePassword(c *gin.Context) {
	var req models.UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("Invalid request body: %v", err)})
		return
	}
	if err := ws.controller.UpdatePassword(c.Request.Context(), req.Password); err != nil {
		writeError(c, err)
		return
	}
	slog.Info("admin password updated")
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Password updated"})
}

func (ws *WebServer) statusResponse(ctx context.Context, probe syncstore.ProbeResult) models.StatusResponse {
	loaded := ws.controller.Loaded()
	return models.StatusResponse{
		Probe:        probe,
		LocalOnly:    probe.LocalOnly(),
		Loaded:       loaded,
		Sources:      ws.controller.Sources(),
		Unpersisted:  ws.controller.UnpersistedKeys(),
		LocalSavedAt: ws.localSaveTimes(ctx),
		CanPush:      loaded && probe.Status == syncstore.StatusReachable,
	}
}

// localSaveTimes skips keys that were never written or could not be read.
func (ws *WebServer) localSaveTimes(ctx context.Context) map[store.Key]time.Time {
	if ws.local == nil {
		return nil
	}
	out := make(map[store.Key]time.Time, len(store.AllKeys))
	for _, key := range store.AllKeys {
		at, err := ws.local.UpdatedAt(ctx, key)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				slog.Warn("failed to read local save time", "key", key, "error", err)
			}
			continue
		}
		out[key] = at
	}
	return out
}

func (ws *WebServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, ws.statusResponse(c.Request.Context(), ws.status.Latest(c.Request.Context())))
}

func (ws *WebServer) handlePush(c *gin.Context) {
	ctx := c.Request.Context()
	err := ws.controller.PushToRemote(ctx)
	probe := ws.status.Check(ctx)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			slog.Error("push to remote failed", "error", err)
		}
		c.JSON(code, models.ErrorResponse{Error: err.Error(), Remediation: probe.Remediation})
		return
	}
	c.JSON(http.StatusOK, ws.statusResponse(ctx, probe))
}
