package cache

import (
	"fmt"
	"strings"
)

// Key identifies one cached source page.
type Key struct {
	// Mailbox is the mailbox address the page was listed from.
	Mailbox string

	// Offset is the record offset of the page.
	Offset int

	// PageSize is the page size the listing used. Pages fetched with a
	// different size are distinct entries.
	PageSize int
}

// String generates a deterministic Redis key.
// Format: outlook_sync:pages:<mailbox>:<offset>:<page_size>
func (k Key) String() string {
	mailbox := strings.ToLower(strings.TrimSpace(k.Mailbox))
	return fmt.Sprintf("outlook_sync:pages:%s:%d:%d", mailbox, k.Offset, k.PageSize)
}
