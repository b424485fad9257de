// Package providers defines the contract shared by the cloud-specific cost
// clients.
package providers

import (
	"context"
	"strings"
	"time"

	"github.com/lvonguyen/cloudspy/internal/normalizer"
)

// Provider names as they appear in routes and responses.
const (
	AWS   = "aws"
	Azure = "azure"
	GCP   = "gcp"
)

// All lists the supported providers in reporting order.
var All = []string{AWS, Azure, GCP}

// CostProvider defines the interface for cloud cost providers
type CostProvider interface {
	Name() string
	TestConnection(ctx context.Context) ConnectionResult
	GetCosts(ctx context.Context, q CostQuery) ([]normalizer.CostMetric, error)
}

// CostQuery describes one range query against a billing API.
type CostQuery struct {
	Start       time.Time
	End         time.Time
	Granularity string
	GroupBy     []string
}

// Credentials is implemented by each provider's credential set.
type Credentials interface {
	Provider() string
	// Present reports whether enough identifying fields are set for the
	// provider to be queried at all.
	Present() bool
}

// ConnectionResult is the outcome of a credential probe.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Connected returns a successful probe result.
func Connected() ConnectionResult {
	return ConnectionResult{Success: true, Message: "Connection successful"}
}

// Failed returns a failed probe result carrying msg.
func Failed(msg string) ConnectionResult {
	return ConnectionResult{Success: false, Error: msg}
}

// IsKnown reports whether name is a supported provider.
func IsKnown(name string) bool {
	for _, p := range All {
		if p == name {
			return true
		}
	}
	return false
}

// ParseList splits a comma-separated provider list, lower-casing and
// trimming entries. Empty entries are dropped.
func ParseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitDimensions splits a comma-separated group_by parameter.
func SplitDimensions(s string) []string {
	var out []string
	for _, d := range strings.Split(s, ",") {
		d = strings.TrimSpace(d)
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}
