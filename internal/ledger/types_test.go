package ledger

import "testing"

func TestAttachmentID(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"attachments/3f2c", "3f2c"},
		{"", ""},
		{"blob:http://localhost:5173/9b1e-44", ""},
		{"3f2c", ""},
	}
	for _, tt := range tests {
		inv := Invoice{FileRef: tt.ref}
		if got := inv.AttachmentID(); got != tt.want {
			t.Errorf("AttachmentID(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}
