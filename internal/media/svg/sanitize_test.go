package svg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	in := []byte(`<svg xmlns="http://www.w3.org/2000/svg" onload="alert(1)">` +
		`<script type="text/javascript">alert(2)</script>` +
		`<script src="x.js"/>` +
		`<foreignObject><body>hi</body></foreignObject>` +
		`<a xlink:href='javascript:alert(3)'><rect onclick='x()' width="10" height="10"/></a>` +
		`</svg>`)

	out, err := Sanitize(in)
	require.NoError(t, err)
	require.Equal(t,
		`<svg xmlns="http://www.w3.org/2000/svg"><a><rect width="10" height="10"/></a></svg>`,
		string(out))
}

func TestSanitizeKeepsCleanDocument(t *testing.T) {
	in := []byte(`<svg viewBox="0 0 1 1"><a href="https://example.com"><circle r="1"/></a></svg>`)
	out, err := Sanitize(in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestSanitizeRejectsNonSVG(t *testing.T) {
	_, err := Sanitize([]byte("<html></html>"))
	require.ErrorIs(t, err, ErrNotSVG)
}
