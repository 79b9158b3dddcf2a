package syncstore

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/aouyang1/photojournal/remote"
)

type ProbeStatus string

const (
	StatusReachable     ProbeStatus = "reachable"
	StatusUnreachable   ProbeStatus = "unreachable"
	StatusNotConfigured ProbeStatus = "not_configured"
)

// ProbeResult is the outcome of one connectivity check against the remote tier.
type ProbeResult struct {
	Status      ProbeStatus   `json:"status"`
	Reason      remote.Reason `json:"reason,omitempty"`
	Driver      string        `json:"driver,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	Remediation string        `json:"remediation,omitempty"`
	CheckedAt   time.Time     `json:"checked_at"`
}

// LocalOnly reports whether saves currently persist to the local cache only.
func (r ProbeResult) LocalOnly() bool {
	return r.Status != StatusReachable
}

var remediations = map[remote.Reason]string{
	remote.ReasonNotConfigured: "Remote storage is not configured. Set JOURNAL_REMOTE_URL and JOURNAL_REMOTE_KEY and restart to keep data beyond this machine.",
	remote.ReasonRejected:      "Remote storage rejected the configured credential. Check JOURNAL_REMOTE_KEY.",
	remote.ReasonUnreachable:   "Remote storage could not be reached. Check JOURNAL_REMOTE_URL and the network.",
	remote.ReasonQueryFailed:   "Remote storage answered with an error. Check that the table or bucket exists and the credential may read and write it.",
}

// Probe checks the remote tier independently of Load and Save.
func (o *Orchestrator) Probe(ctx context.Context) ProbeResult {
	now := time.Now()

	if o.remote == nil {
		return ProbeResult{
			Status:      StatusNotConfigured,
			Reason:      remote.ReasonNotConfigured,
			Detail:      "remote endpoint or credential is absent",
			Remediation: remediations[remote.ReasonNotConfigured],
			CheckedAt:   now,
		}
	}

	pctx, cancel := context.WithTimeout(ctx, o.remoteTimeout)
	defer cancel()

	if err := o.remote.Probe(pctx); err != nil {
		reason := remote.ReasonOf(err)
		return ProbeResult{
			Status:      StatusUnreachable,
			Reason:      reason,
			Driver:      o.remote.Driver(),
			Detail:      err.Error(),
			Remediation: remediations[reason],
			CheckedAt:   now,
		}
	}

	return ProbeResult{
		Status:    StatusReachable,
		Driver:    o.remote.Driver(),
		CheckedAt: now,
	}
}

func isJSONObject(value []byte) bool {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}
