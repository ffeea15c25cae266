package core

import (
	"testing"

	"ftpgate/internal/ftpconn"
)

func TestTransferTypeFor(t *testing.T) {
	tests := []struct {
		name string
		want ftpconn.TransferType
	}{
		{"photo.jpg", ftpconn.TypeBinary},
		{"PHOTO.JPEG", ftpconn.TypeBinary},
		{"icon.png", ftpconn.TypeBinary},
		{"scan.tiff", ftpconn.TypeBinary},
		{"dir/anim.gif", ftpconn.TypeBinary},
		{"notes.txt", ftpconn.TypeText},
		{"README", ftpconn.TypeText},
		{"archive.zip", ftpconn.TypeText},
		{"tool.exe", ftpconn.TypeText},
		{"jpg", ftpconn.TypeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TransferTypeFor(tt.name); got != tt.want {
				t.Errorf("TransferTypeFor(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
