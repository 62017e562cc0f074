package models

import "fmt"

// FileStatus represents the lifecycle state of a submitted file.
type FileStatus string

const (
	StatusQueued     FileStatus = "queued"
	StatusUploading  FileStatus = "uploading"
	StatusProcessing FileStatus = "processing"
	StatusComplete   FileStatus = "complete"
	StatusError      FileStatus = "error"
)

// transitions is the only legal forward path through the lifecycle.
// Complete and Error are terminal; nothing ever moves backwards.
var transitions = map[FileStatus][]FileStatus{
	StatusQueued:     {StatusUploading},
	StatusUploading:  {StatusProcessing, StatusError},
	StatusProcessing: {StatusComplete},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s FileStatus) CanTransitionTo(next FileStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a final state.
func (s FileStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// FileRecord tracks one file of a batch through upload and processing.
type FileRecord struct {
	Name          string     `json:"name"`
	ContentType   string     `json:"contentType,omitempty"`
	Size          int64      `json:"size,omitempty"`
	Status        FileStatus `json:"status"`
	ReadyVariants []Variant  `json:"readyVariants"`
	Error         string     `json:"error,omitempty"`
}

// HasVariant reports whether the variant was already observed for this file.
func (r *FileRecord) HasVariant(v Variant) bool {
	for _, rv := range r.ReadyVariants {
		if rv == v {
			return true
		}
	}
	return false
}

// MissingVariants returns the variants not yet observed, in display order.
func (r *FileRecord) MissingVariants() []Variant {
	missing := make([]Variant, 0, len(AllVariants))
	for _, v := range AllVariants {
		if !r.HasVariant(v) {
			missing = append(missing, v)
		}
	}
	return missing
}

func (r *FileRecord) advance(next FileStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal status transition for %s: %s -> %s", r.Name, r.Status, next)
	}
	r.Status = next
	return nil
}
