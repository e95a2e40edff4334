// Package storage hands completed capture documents to their final
// destination: a local directory, an HTTP upload endpoint or an object store.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Document is one accepted slot image ready for hand-off.
type Document struct {
	SessionID   string
	ClientRef   string
	Profile     string
	Slot        string
	Filename    string
	ContentType string
	Data        []byte
}

// DocumentStore persists documents and reports where each one landed.
type DocumentStore interface {
	Store(ctx context.Context, doc Document) (location string, err error)
	Name() string
	Close() error
}

// SuggestedFilename returns "<profile>_<slot>_<unix>.jpg".
func SuggestedFilename(profile, slot string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d.jpg", profile, slot, at.Unix())
}

// ObjectKey places doc under prefix/<profile>/<session>/<filename>.
func ObjectKey(prefix string, doc Document) string {
	name := doc.Filename
	if name == "" {
		name = SuggestedFilename(doc.Profile, doc.Slot, time.Now())
	}
	key := path.Join(prefix, sanitize(doc.Profile), sanitize(doc.SessionID), sanitize(name))
	return strings.TrimPrefix(key, "/")
}

func sanitize(part string) string {
	part = strings.ReplaceAll(part, "/", "_")
	part = strings.ReplaceAll(part, "\\", "_")
	if part == "" || part == "." || part == ".." {
		return "_"
	}
	return part
}

func contentType(doc Document) string {
	if doc.ContentType != "" {
		return doc.ContentType
	}
	return "image/jpeg"
}
