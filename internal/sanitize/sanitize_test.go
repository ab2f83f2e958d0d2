package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	s := Default()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain text untouched", "Coffee at 10 in room 4", "Coffee at 10 in room 4"},
		{"script block removed", "hi<script>alert(1)</script>there", "hithere"},
		{"script block case insensitive", "a<SCRIPT type=x>steal()</ScRiPt>b", "ab"},
		{"script block across lines", "a<script>\nx()\n</script>b", "ab"},
		{"javascript scheme", "JavaScript:alert", "alert"},
		{"event handler", `<img src=x onerror=boom>`, "&lt;img src=x boom&gt;"},
		{"union select", "1 UNION   SELECT pw", "1  pw"},
		{"drop table", "x; drop table users", "x;  users"},
		{"insert into", "INSERT INTO t", " t"},
		{"delete from", "delete  from t", " t"},
		{"path traversal", "../../etc/passwd", "/etc/passwd"},
		{"eval", "eval (x)", "x)"},
		{"exec", "EXEC(x)", "x)"},
		{"quotes escaped", `say "hi" it's`, "say &quot;hi&quot; it&#x27;s"},
		{"angle brackets escaped", "a < b > c", "a &lt; b &gt; c"},
		{"ampersand untouched", "fish & chips &amp;", "fish & chips &amp;"},
		{"unicode preserved", "Grüße ☕", "Grüße ☕"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Sanitize(tt.input))
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := Default()
	once := s.Sanitize(`<b onclick="x">"quoted"</b>`)
	assert.Equal(t, once, s.Sanitize(once))
}

func TestSanitize_NestedFragments(t *testing.T) {
	s := Default()

	tests := []struct {
		name   string
		input  string
		banned string
	}{
		{"nested drop table", "DRDROP TABLEOP TABLE", "drop table"},
		{"doubly nested drop table", "DRDRDROP TABLEOP TABLEOP TABLE users", "drop table"},
		{"nested javascript scheme", "javajavascript:script:alert(1)", "javascript:"},
		{"handler rebuilt across patterns", "oneval(click=", "onclick="},
		{"nested traversal", "..../../../etc", "../.."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := s.Sanitize(tt.input)
			assert.NotContains(t, strings.ToLower(out), tt.banned)
		})
	}
}

func TestSanitizeOptional(t *testing.T) {
	s := Default()
	assert.Nil(t, s.SanitizeOptional(nil))

	in := "<x>"
	out := s.SanitizeOptional(&in)
	require.NotNil(t, out)
	assert.Equal(t, "&lt;x&gt;", *out)
	assert.Equal(t, "<x>", in, "input must not be modified")
}

func TestValidateSize(t *testing.T) {
	s, err := New(nil, 8)
	require.NoError(t, err)

	assert.True(t, s.ValidateSize(""))
	assert.True(t, s.ValidateSize("12345678"))
	assert.False(t, s.ValidateSize("123456789"))

	// Size counts UTF-8 bytes, not characters: "é" is two bytes.
	assert.True(t, s.ValidateSize("éééé"))
	assert.False(t, s.ValidateSize("ééééé"))
}

func TestValidateSize_DefaultCeiling(t *testing.T) {
	s := Default()
	assert.Equal(t, DefaultMaxBytes, s.MaxBytes())
	assert.True(t, s.ValidateSize(strings.Repeat("a", DefaultMaxBytes)))
	assert.False(t, s.ValidateSize(strings.Repeat("a", DefaultMaxBytes+1)))
}

func TestValidateSizeLimit(t *testing.T) {
	s := Default()
	assert.True(t, s.ValidateSizeLimit("abc", 3))
	assert.False(t, s.ValidateSizeLimit("abcd", 3))
	assert.False(t, s.ValidateSizeLimit("☕", 2))
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New([]string{"("}, 0)
	assert.Error(t, err)
}

func TestNew_CustomPatterns(t *testing.T) {
	s, err := New([]string{`badword`}, 0)
	require.NoError(t, err)
	assert.Equal(t, " ok", s.Sanitize("BadWord ok"))
	// Default patterns are not applied when a custom list is given.
	assert.Equal(t, "eval(x)", s.Sanitize("eval(x)"))
}
