// Package backend defines the storage service interface for persisted
// trajectory nodes, with implementations for different deployments:
//   - memory: In-memory storage for development/testing
//   - file: JSON-file-per-node storage for CLI usage
//   - redis: Redis-backed storage for shared low-latency access
//   - mongo: MongoDB-backed storage for production deployments
//
// # Data model
//
// A backend is a flat keyed store of node records, keyed by trajectory
// name and node full name (the dot-joined path; the root node's full
// name is empty). Records carry the node skeleton (kind, comment,
// annotations, link edges) and, for leaves, the item payload. The root
// record additionally carries trajectory metadata (identity, format
// version, run table).
//
// Backends store and list; they know nothing about tree semantics,
// depth limits or overwrite modes. That logic lives in the storage
// coordinator driving them.
package backend

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/matzehuels/trek/pkg/errors"
)

// Node kinds stored in a Record.
const (
	KindGroup = "group"
	KindLeaf  = "leaf"
)

// RunMeta is one run table row persisted with the root record.
type RunMeta struct {
	Index     int    `json:"index" bson:"index"`
	Name      string `json:"name" bson:"name"`
	Completed bool   `json:"completed" bson:"completed"`
}

// TrajectoryMeta is the trajectory-level metadata carried by the root
// record only.
type TrajectoryMeta struct {
	ID      string    `json:"id" bson:"id"`
	Name    string    `json:"name" bson:"name"`
	Version string    `json:"version" bson:"version"`
	Runs    []RunMeta `json:"runs,omitempty" bson:"runs,omitempty"`

	// Overview indexes leaf full names by item kind for cheap scans.
	// Each table is capped by the coordinator; leaves past the cap are
	// still stored under their node but no longer listed here.
	Overview map[string][]string `json:"overview,omitempty" bson:"overview,omitempty"`
}

// Record is one persisted node.
type Record struct {
	FullName    string            `json:"full_name" bson:"full_name"`
	Kind        string            `json:"kind" bson:"kind"`
	ItemKind    string            `json:"item_kind,omitempty" bson:"item_kind,omitempty"`
	Comment     string            `json:"comment,omitempty" bson:"comment,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" bson:"annotations,omitempty"`

	// Links maps edge names to target full names. Targets are resolved
	// back to nodes after the whole skeleton is loaded.
	Links map[string]string `json:"links,omitempty" bson:"links,omitempty"`

	// Payload holds the leaf item's serialized state; nil for groups and
	// for skeleton-only writes.
	Payload map[string]json.RawMessage `json:"payload,omitempty" bson:"payload,omitempty"`

	// HasData reports whether a payload has ever been written for this
	// node, so skeleton-only reads can tell "no data yet" from "not
	// loaded".
	HasData bool `json:"has_data" bson:"has_data"`

	// Meta is set on the root record only.
	Meta *TrajectoryMeta `json:"meta,omitempty" bson:"meta,omitempty"`
}

// Name returns the record's last path segment, or "" for the root.
func (r *Record) Name() string {
	if i := strings.LastIndex(r.FullName, "."); i >= 0 {
		return r.FullName[i+1:]
	}
	return r.FullName
}

// Backend is the interface storage services implement.
//
// fullName is the node's dot-joined path; the root node uses "". All
// implementations must make WriteNode an upsert and ReadNode return
// NOT_FOUND (via errors.ErrCodeNotFound) for missing nodes.
type Backend interface {
	// WriteNode upserts one node record.
	WriteNode(ctx context.Context, traj string, rec Record) error

	// ReadNode reads one node record.
	ReadNode(ctx context.Context, traj, fullName string) (Record, error)

	// ListChildren returns the names (last segments) of the direct
	// children of fullName, in unspecified order. A node without
	// children yields an empty slice, not an error.
	ListChildren(ctx context.Context, traj, fullName string) ([]string, error)

	// DeleteNode removes one node record. Deleting a missing node is
	// not an error.
	DeleteNode(ctx context.Context, traj, fullName string) error

	// ListTrajectories returns the names of all stored trajectories.
	ListTrajectories(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Service kinds accepted by Open.
const (
	ServiceMemory = "memory"
	ServiceFile   = "file"
	ServiceRedis  = "redis"
	ServiceMongo  = "mongo"
)

// Open creates a backend of the given kind.
//
// The location's meaning depends on the kind: a directory for file, a
// host:port address for redis, a connection URI for mongo; memory
// ignores it. Unknown kinds fail with NO_SUCH_SERVICE.
func Open(ctx context.Context, kind, location string) (Backend, error) {
	switch kind {
	case ServiceMemory:
		return NewMemory(), nil
	case ServiceFile:
		return NewFile(location)
	case ServiceRedis:
		return NewRedis(ctx, location)
	case ServiceMongo:
		return NewMongo(ctx, location)
	}
	return nil, errors.New(errors.ErrCodeNoSuchService,
		"unknown storage service %q (want %s, %s, %s or %s)",
		kind, ServiceMemory, ServiceFile, ServiceRedis, ServiceMongo)
}

// parentOf returns the parent full name of fullName, and whether
// fullName has a parent at all (the root does not).
func parentOf(fullName string) (string, bool) {
	if fullName == "" {
		return "", false
	}
	if i := strings.LastIndex(fullName, "."); i >= 0 {
		return fullName[:i], true
	}
	return "", true
}

// lastSegment returns the final path segment.
func lastSegment(fullName string) string {
	if i := strings.LastIndex(fullName, "."); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}
