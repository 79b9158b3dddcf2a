// Package models tracks all api models for request and responses
package models

import (
	"time"

	"github.com/aouyang1/photojournal/store"
	"github.com/aouyang1/photojournal/syncstore"
)

type PhotoListResponse struct {
	Photos []store.Photo `json:"photos"`
	Total  int           `json:"total"`
}

type UpdatePhotoRequest struct {
	DateText    *string `json:"dateText"`
	Description *string `json:"description"`
}

type ContactResponse struct {
	HTML   string   `json:"html"`
	Images []string `json:"images"`
}

type UpdateContactRequest struct {
	HTML string `json:"html"`
}

type LoginRequest struct {
	User string `json:"user" binding:"required"`
	Pass string `json:"pass" binding:"required"`
}

type UpdatePasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

type HeartbeatResponse struct {
	Status string `json:"status"`
	Loaded bool   `json:"loaded"`
}

// StatusResponse backs the admin sync banner.
type StatusResponse struct {
	Probe        syncstore.ProbeResult          `json:"probe"`
	LocalOnly    bool                           `json:"local_only"`
	Loaded       bool                           `json:"loaded"`
	Sources      map[store.Key]syncstore.Source `json:"sources"`
	Unpersisted  []store.Key                    `json:"unpersisted,omitempty"`
	LocalSavedAt map[store.Key]time.Time        `json:"local_saved_at,omitempty"`
	CanPush      bool                           `json:"can_push"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error       string `json:"error"`
	Remediation string `json:"remediation,omitempty"`
}
