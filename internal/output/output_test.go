package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Marks(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"success", func(w *Writer) { w.Success("index written") }, "ok index written\n"},
		{"successf", func(w *Writer) { w.Successf("%d documents", 3) }, "ok 3 documents\n"},
		{"warning", func(w *Writer) { w.Warning("reranker offline") }, "!! reranker offline\n"},
		{"warningf", func(w *Writer) { w.Warningf("%d failed", 2) }, "!! 2 failed\n"},
		{"info", func(w *Writer) { w.Info("watching") }, "-- watching\n"},
		{"infof", func(w *Writer) { w.Infof("+%d -%d", 1, 2) }, "-- +1 -2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a writer over a buffer, which is never a terminal
			buf := &bytes.Buffer{}
			w := New(buf)

			// When: writing
			tt.write(w)

			// Then: the line is plain text
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_HintIndentsEachLine(t *testing.T) {
	buf := &bytes.Buffer{}

	New(buf).Hint("docindex config show\ndocindex index")

	assert.Equal(t, "   docindex config show\n   docindex index\n", buf.String())
}
