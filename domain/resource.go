package domain

import (
	"fmt"
	"strings"
)

type ResourceType string

const (
	ResourceDocument ResourceType = "document"
	ResourceLink     ResourceType = "link"
	ResourceFile     ResourceType = "file"
)

type ResourceItem struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	URL         string       `json:"url"`
	Type        ResourceType `json:"type"`
	Description string       `json:"description,omitempty"`
}

// NewResource validates and assigns an id. Title and url are required.
func NewResource(r ResourceItem) (ResourceItem, error) {
	r.Title = strings.TrimSpace(r.Title)
	r.URL = strings.TrimSpace(r.URL)
	if r.Title == "" || r.URL == "" {
		return ResourceItem{}, fmt.Errorf("title and url: %w", ErrMissingField)
	}
	if r.Type == "" {
		r.Type = ResourceLink
	}
	r.ID = NewID(PrefixResource)
	return r, nil
}

func (b *ModeBoard) UpdateResource(id string, r ResourceItem) (ResourceItem, error) {
	for i := range b.Resources {
		if b.Resources[i].ID != id {
			continue
		}
		cur := &b.Resources[i]
		if t := strings.TrimSpace(r.Title); t != "" {
			cur.Title = t
		}
		if u := strings.TrimSpace(r.URL); u != "" {
			cur.URL = u
		}
		if r.Type != "" {
			cur.Type = r.Type
		}
		if r.Description != "" {
			cur.Description = r.Description
		}
		return *cur, nil
	}
	return ResourceItem{}, fmt.Errorf("resource %s: %w", id, ErrNotFound)
}

func (b *ModeBoard) RemoveResource(id string) error {
	for i := range b.Resources {
		if b.Resources[i].ID == id {
			b.Resources = append(b.Resources[:i], b.Resources[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("resource %s: %w", id, ErrNotFound)
}
