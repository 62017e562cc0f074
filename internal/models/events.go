package models

// Progress is the running upload progress signal for a batch.
// Completed counts settled files, success or failure alike.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// VariantEvent announces that a derived rendition became available.
// The engine emits it at most once per (file, variant) pair.
type VariantEvent struct {
	File    string  `json:"file"`
	Variant Variant `json:"variant"`
	URL     string  `json:"url"`
}
