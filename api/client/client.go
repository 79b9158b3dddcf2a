package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/aouyang1/photojournal/api/models"
	"github.com/aouyang1/photojournal/store"
	"github.com/aouyang1/photojournal/syncstore"
)

// JournalClient talks to the journal web server. Admin calls send the configured credentials
// with HTTP basic auth.
type JournalClient struct {
	baseURL string
	user    string
	pass    string
	client  *http.Client
}

func NewJournalClient(baseURL, user, pass string) *JournalClient {
	return &JournalClient{
		baseURL: baseURL,
		user:    user,
		pass:    pass,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	StatusCode  int
	Message     string
	Remediation string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

func (jc *JournalClient) newRequest(ctx context.Context, method, path string, body io.Reader, admin bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, jc.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if admin {
		req.SetBasicAuth(jc.user, jc.pass)
	}
	return req, nil
}

func (jc *JournalClient) jsonRequest(ctx context.Context, method, path string, in any, admin bool) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}
	req, err := jc.newRequest(ctx, method, path, body, admin)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (jc *JournalClient) do(req *http.Request, out any) error {
	resp, err := jc.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp models.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error, Remediation: errResp.Remediation}
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (jc *JournalClient) call(ctx context.Context, method, path string, in, out any, admin bool) error {
	req, err := jc.jsonRequest(ctx, method, path, in, admin)
	if err != nil {
		return err
	}
	return jc.do(req, out)
}

func photoPath(id string) string {
	return "/photos/" + url.PathEscape(id)
}

func adminPhotoPath(id string) string {
	return "/admin/photos/" + url.PathEscape(id)
}

// GetPhotos returns the whole collection in curation order.
func (jc *JournalClient) GetPhotos(ctx context.Context) ([]store.Photo, error) {
	var listResp models.PhotoListResponse
	if err := jc.call(ctx, http.MethodGet, "/photos", nil, &listResp, false); err != nil {
		return nil, err
	}
	return listResp.Photos, nil
}

func (jc *JournalClient) GetPhoto(ctx context.Context, id string) (store.Photo, error) {
	var photo store.Photo
	err := jc.call(ctx, http.MethodGet, photoPath(id), nil, &photo, false)
	return photo, err
}

func (jc *JournalClient) GetContact(ctx context.Context) (models.ContactResponse, error) {
	var contact models.ContactResponse
	err := jc.call(ctx, http.MethodGet, "/contact", nil, &contact, false)
	return contact, err
}

// Login checks credentials without storing them on the client.
func (jc *JournalClient) Login(ctx context.Context, user, pass string) error {
	return jc.call(ctx, http.MethodPost, "/admin/login", models.LoginRequest{User: user, Pass: pass}, nil, false)
}

// UploadPhoto sends a local image file through the intake pipeline.
func (jc *JournalClient) UploadPhoto(ctx context.Context, photoPath string) (store.Photo, error) {
	var photo store.Photo
	err := jc.upload(ctx, "/admin/photos", photoPath, &photo)
	return photo, err
}

func (jc *JournalClient) AddContactImage(ctx context.Context, imagePath string) (models.ContactResponse, error) {
	var contact models.ContactResponse
	err := jc.upload(ctx, "/admin/contact/images", imagePath, &contact)
	return contact, err
}

func (jc *JournalClient) upload(ctx context.Context, path, filePath string, out any) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := jc.newRequest(ctx, http.MethodPost, path, &buf, true)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return jc.do(req, out)
}

func (jc *JournalClient) UpdatePhoto(ctx context.Context, id string, update models.UpdatePhotoRequest) (store.Photo, error) {
	var photo store.Photo
	err := jc.call(ctx, http.MethodPatch, adminPhotoPath(id), update, &photo, true)
	return photo, err
}

func (jc *JournalClient) DeletePhoto(ctx context.Context, id string) error {
	return jc.call(ctx, http.MethodDelete, adminPhotoPath(id), nil, nil, true)
}

// MovePhoto moves a photo one place "up" or "down" and returns the new order.
func (jc *JournalClient) MovePhoto(ctx context.Context, id, direction string) ([]store.Photo, error) {
	var listResp models.PhotoListResponse
	path := fmt.Sprintf("%s/move/%s", adminPhotoPath(id), url.PathEscape(direction))
	if err := jc.call(ctx, http.MethodPost, path, nil, &listResp, true); err != nil {
		return nil, err
	}
	return listResp.Photos, nil
}

func (jc *JournalClient) SetContactHTML(ctx context.Context, html string) (models.ContactResponse, error) {
	var contact models.ContactResponse
	err := jc.call(ctx, http.MethodPut, "/admin/contact", models.UpdateContactRequest{HTML: html}, &contact, true)
	return contact, err
}

func (jc *JournalClient) RemoveContactImage(ctx context.Context, index int) (models.ContactResponse, error) {
	var contact models.ContactResponse
	err := jc.call(ctx, http.MethodDelete, fmt.Sprintf("/admin/contact/images/%d", index), nil, &contact, true)
	return contact, err
}

// UpdatePassword changes the admin password and switches the client to it.
func (jc *JournalClient) UpdatePassword(ctx context.Context, password string) error {
	if err := jc.call(ctx, http.MethodPut, "/admin/password", models.UpdatePasswordRequest{Password: password}, nil, true); err != nil {
		return err
	}
	jc.pass = password
	return nil
}

func (jc *JournalClient) Status(ctx context.Context) (models.StatusResponse, error) {
	var status models.StatusResponse
	err := jc.call(ctx, http.MethodGet, "/admin/status", nil, &status, true)
	return status, err
}

// Push overwrites the remote store with the server's current state.
func (jc *JournalClient) Push(ctx context.Context) (syncstore.ProbeResult, error) {
	var status models.StatusResponse
	err := jc.call(ctx, http.MethodPost, "/admin/sync/push", nil, &status, true)
	return status.Probe, err
}
