package core

import (
	"errors"
	"testing"
)

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{
			name: "valid document",
			doc: &Document{
				Id:          1,
				Path:        "/data/notes/a.txt",
				ContentHash: 12345,
				Size:        100,
			},
			wantErr: nil,
		},
		{
			name: "valid document with ID 0",
			doc: &Document{
				Id:   0,
				Path: "/data/notes/b.txt",
			},
			wantErr: nil,
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrInvalidDocument,
		},
		{
			name: "empty path",
			doc: &Document{
				Id:   1,
				Path: "",
			},
			wantErr: ErrEmptyPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDocument() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		chunk   *Chunk
		wantErr error
	}{
		{
			name: "valid chunk",
			chunk: &Chunk{
				Id:         1,
				DocumentId: 2,
				Ordinal:    0,
				Text:       "apple banana",
				Range:      ByteRange{Start: 0, End: 12},
			},
			wantErr: nil,
		},
		{
			name: "valid chunk with ID 0",
			chunk: &Chunk{
				Id:   0,
				Text: "pending sequence assignment",
			},
			wantErr: nil,
		},
		{
			name:    "nil chunk",
			chunk:   nil,
			wantErr: ErrInvalidChunk,
		},
		{
			name: "empty text",
			chunk: &Chunk{
				Id:   1,
				Text: "",
			},
			wantErr: ErrEmptyText,
		},
		{
			name: "inverted byte range",
			chunk: &Chunk{
				Id:    1,
				Text:  "x",
				Range: ByteRange{Start: 10, End: 5},
			},
			wantErr: ErrInvalidByteRange,
		},
		{
			name: "negative ordinal",
			chunk: &Chunk{
				Id:      1,
				Text:    "x",
				Ordinal: -1,
			},
			wantErr: ErrInvalidChunk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateChunk() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateChunk() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFolder(t *testing.T) {
	tests := []struct {
		name    string
		folder  *Folder
		wantErr error
	}{
		{
			name: "valid folder",
			folder: &Folder{
				Path:      "/data/notes",
				Recursive: true,
			},
			wantErr: nil,
		},
		{
			name:    "nil folder",
			folder:  nil,
			wantErr: ErrInvalidFolder,
		},
		{
			name: "empty path",
			folder: &Folder{
				Path: "",
			},
			wantErr: ErrEmptyPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFolder(tt.folder)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateFolder() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateFolder() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDimensionMismatchError(t *testing.T) {
	err := &DimensionMismatchError{Want: 384, Got: 128}
	want := "dimension mismatch: want 384, got 128"
	if err.Error() != want {
		t.Errorf("DimensionMismatchError.Error() = %q, want %q", err.Error(), want)
	}
}
