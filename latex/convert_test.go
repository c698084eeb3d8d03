package latex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertHTML_SpecExample(t *testing.T) {
	got, err := ConvertHTML("<p>Hi <b>there</b></p><ul><li>A</li><li>B</li></ul>")
	require.NoError(t, err)

	assert.Contains(t, got, `\textbf{there}`)
	assert.Contains(t, got, `\begin{itemize}`)
	assert.Contains(t, got, `\end{itemize}`)

	itemA := strings.Index(got, `\item A`)
	itemB := strings.Index(got, `\item B`)
	require.GreaterOrEqual(t, itemA, 0)
	require.GreaterOrEqual(t, itemB, 0)
	assert.Less(t, itemA, itemB, "list entries must keep document order")
	assert.Equal(t, 2, strings.Count(got, `\item`), "exactly two list entries")
}

func TestConvertHTML_Tags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bold", in: "<b>x</b>", want: `\textbf{x}`},
		{name: "strong", in: "<strong>x</strong>", want: `\textbf{x}`},
		{name: "italic", in: "<i>x</i>", want: `\textit{x}`},
		{name: "emphasis", in: "<em>x</em>", want: `\textit{x}`},
		{name: "underline", in: "<u>x</u>", want: `\underline{x}`},
		{name: "link", in: `<a href="https://example.com/a_b">here</a>`, want: `\href{https://example.com/a\_b}{here}`},
		{name: "line break", in: "a<br>b", want: `a\\b`},
		{name: "nested emphasis", in: "<b><i>x</i></b>", want: `\textbf{\textit{x}}`},
		{name: "ordered list", in: "<ol><li>one</li></ol>", want: "\\begin{enumerate}\n\\item one\n\\end{enumerate}"},
		{name: "text leaf escaped", in: "<p>100% sure</p>", want: `100\% sure`},
		{name: "unknown structural tag passes text through", in: "<table><tr><td>cell</td></tr></table>", want: "cell"},
		{name: "empty input", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertHTML(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertHTML_ParagraphsSeparated(t *testing.T) {
	got, err := ConvertHTML("<p>first</p><p>second</p>")
	require.NoError(t, err)

	b := SegmentLaTeX(got)
	assert.Equal(t, "first", b.First)
	assert.Equal(t, "second", b.Second)
	assert.Empty(t, b.Third)
}

func TestConvertHTML_ScriptDropped(t *testing.T) {
	got, err := ConvertHTML(`<p>hello</p><script>alert("x")</script>`)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestConvertHTML_OutputNotReescaped(t *testing.T) {
	got, err := ConvertHTML("<b>50%</b>")
	require.NoError(t, err)
	// The percent sign is escaped exactly once, by the text leaf.
	assert.Equal(t, `\textbf{50\%}`, got)
}
