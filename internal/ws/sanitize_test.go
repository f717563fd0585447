package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeContentEscapesScriptTags(t *testing.T) {
	assert.Equal(t, "&lt;script&gt;", sanitizeContent("<script>"))
}

func TestSanitizeContentEscapesAllFiveCharacters(t *testing.T) {
	assert.Equal(t, "&amp; &lt; &gt; &quot; &#x27;", sanitizeContent(`& < > " '`))
}

func TestSanitizeContentSinglePass(t *testing.T) {
	// Escaping must happen exactly once: the ampersands introduced by the
	// first pass are not themselves re-escaped.
	once := sanitizeContent("<b>&</b>")
	assert.Equal(t, "&lt;b&gt;&amp;&lt;/b&gt;", once)
	assert.NotEqual(t, once, sanitizeContent(once))
}

func TestSanitizeContentLeavesPlainTextAlone(t *testing.T) {
	assert.Equal(t, "hello world", sanitizeContent("hello world"))
}
