package cache

import "testing"

func TestKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "basic key",
			key:  Key{Mailbox: "sales@example.com", Offset: 50, PageSize: 50},
			want: "outlook_sync:pages:sales@example.com:50:50",
		},
		{
			name: "mailbox normalized",
			key:  Key{Mailbox: "  Sales@Example.COM ", Offset: 0, PageSize: 50},
			want: "outlook_sync:pages:sales@example.com:0:50",
		},
		{
			name: "page size distinguishes entries",
			key:  Key{Mailbox: "sales@example.com", Offset: 0, PageSize: 25},
			want: "outlook_sync:pages:sales@example.com:0:25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("Key.String() = %q, want %q", got, tt.want)
			}
		})
	}
}
