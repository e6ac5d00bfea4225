package types

import "io"

// Source is the opaque handle to the local bytes behind a selected item.
type Source interface {
	Open() (io.ReadCloser, error)
}

// RawEntry is one picked or dropped entry before it is accepted into a selection.
type RawEntry struct {
	Source      Source
	DisplayName string
	SizeBytes   int64
	InFolder    bool // flagged by a folder pick
}

// SelectedItem is one candidate unit of transfer.
type SelectedItem struct {
	ID             int64  `json:"id"`
	Source         Source `json:"-"`
	DisplayName    string `json:"displayName"`
	SizeBytes      int64  `json:"sizeBytes"`
	IsFolderMember bool   `json:"isFolderMember"`
	IconHint       string `json:"iconHint"`
}

// AddResult reports which entries were accepted. Advisory is set when the quota dropped entries.
type AddResult struct {
	Added    []SelectedItem `json:"added"`
	Skipped  int            `json:"skipped"`
	Advisory string         `json:"advisory,omitempty"`
}
