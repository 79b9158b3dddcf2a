// Package remote holds the optional network backed store for journal aggregates.
//
// A Client exists only when both an endpoint and a credential are configured. Callers hold a
// nil Client otherwise and must check for it before use. Writes are last-write-wins upserts
// with no version check; the journal assumes a single admin writer.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

var ErrNotFound = errors.New("key not found in remote store")

// Client is the remote tier contract shared by every driver.
type Client interface {
	Driver() string
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Probe runs a bounded existence query. Failures are *ProbeError.
	Probe(ctx context.Context) error
	Close() error
}

type Config struct {
	Driver     string
	Endpoint   string
	Credential string
	Table      string

	S3Bucket      string
	S3Region      string
	S3AccessKeyID string
	S3Prefix      string
}

// Configured reports whether both the endpoint and the credential are present.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Credential) != ""
}

// New builds the client for the configured driver. It returns nil, nil when the
// remote tier is not configured.
func New(ctx context.Context, cfg Config) (Client, error) {
	if !cfg.Configured() {
		return nil, nil
	}

	switch cfg.Driver {
	case "", DriverPostgres:
		c, err := NewPostgresClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case DriverS3:
		c, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported remote driver: %s", cfg.Driver)
	}
}

// Reason explains why a remote call failed. Each reason needs different remediation.
type Reason string

const (
	ReasonNotConfigured Reason = "credentials_absent"
	ReasonRejected      Reason = "credentials_rejected"
	ReasonUnreachable   Reason = "unreachable"
	ReasonQueryFailed   Reason = "query_failed"
)

type ProbeError struct {
	Reason Reason
	Err    error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason from err, defaulting to ReasonUnreachable.
func ReasonOf(err error) Reason {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ReasonUnreachable
}

// unavailable stands in for a configured client that could not be constructed, so the
// tier still reports as present but failing.
type unavailable struct {
	driver string
	err    error
}

// Unavailable returns a Client whose every call fails with err.
func Unavailable(driver string, err error) Client {
	if driver == "" {
		driver = DriverPostgres
	}
	return &unavailable{driver: driver, err: &ProbeError{Reason: ReasonUnreachable, Err: err}}
}

func (u *unavailable) Driver() string                              { return u.driver }
func (u *unavailable) Get(context.Context, string) ([]byte, error) { return nil, u.err }
func (u *unavailable) Put(context.Context, string, []byte) error   { return u.err }
func (u *unavailable) Probe(context.Context) error                 { return u.err }
func (u *unavailable) Close() error                                { return nil }
