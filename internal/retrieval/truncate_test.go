package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate_MultibyteSafe(t *testing.T) {
	query := strings.Repeat("é", 60)

	got := truncate(query, 50)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 50)+"...", got)
}

func TestTruncate_ShortStringUnchanged(t *testing.T) {
	assert.Equal(t, "budget review", truncate("budget review", 50))
}
