package identity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zallek/galaxy/internal/domain"
)

func TestHashIsDeterministic(t *testing.T) {
	url := "https://www.example.com/category/shoes?page=2"
	assert.Equal(t, Hash(url), Hash(url))
}

func TestHashDistinguishesURLs(t *testing.T) {
	seen := make(map[domain.PageID]string, 100000)
	for i := 0; i < 100000; i++ {
		url := fmt.Sprintf("https://www.example.com/p/%d", i)
		id := Hash(url)
		if prev, ok := seen[id]; ok {
			t.Fatalf("collision between %q and %q", prev, url)
		}
		seen[id] = url
	}
}

func TestHashIsCaseAndSlashSensitive(t *testing.T) {
	assert.NotEqual(t, Hash("https://example.com/a"), Hash("https://example.com/A"))
	assert.NotEqual(t, Hash("https://example.com/a"), Hash("https://example.com/a/"))
}
