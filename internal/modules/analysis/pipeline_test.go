package analysis

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "github.com/codeverdict/core/internal/config"
)

type zipEntry struct {
	name string
	body []byte
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		if strings.HasSuffix(e.name, "/") {
			_, err := zw.Create(e.name)
			require.NoError(t, err)
			continue
		}
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write(e.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	archive := buildZip(t,
		zipEntry{name: "octo-repo-abc123/"},
		zipEntry{name: "octo-repo-abc123/src/main.go", body: []byte("  package main\n")},
		zipEntry{name: "octo-repo-abc123/README.MD", body: []byte("# hello")},
		zipEntry{name: "octo-repo-abc123/logo.png", body: []byte{0x89, 0x50}},
		zipEntry{name: "octo-repo-abc123/empty.js", body: []byte("  \n\t ")},
		zipEntry{name: "octo-repo-abc123/Makefile", body: []byte("all:")},
	)

	files, err := NewExtractor(appcfg.DefaultExtensions, appcfg.DecodePolicySkip, ExtractLimits{}).Extract(archive)
	require.NoError(t, err)
	assert.Equal(t, []SourceFile{
		{Path: "src/main.go", Content: "package main"},
		{Path: "README.MD", Content: "# hello"},
	}, files)
}

func TestExtractKeepsPathsWithoutCommonRoot(t *testing.T) {
	archive := buildZip(t,
		zipEntry{name: "a/x.py", body: []byte("print(1)")},
		zipEntry{name: "b/y.py", body: []byte("print(2)")},
	)
	files, err := NewExtractor([]string{".PY"}, "", ExtractLimits{}).Extract(archive)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a/x.py", files[0].Path)
	assert.Equal(t, "b/y.py", files[1].Path)
}

func TestExtractDecodePolicy(t *testing.T) {
	archive := buildZip(t,
		zipEntry{name: "r/bad.js", body: []byte{'a', 0xff, 'b'}},
		zipEntry{name: "r/good.js", body: []byte("ok")},
	)

	t.Run("skip", func(t *testing.T) {
		files, err := NewExtractor([]string{"js"}, appcfg.DecodePolicySkip, ExtractLimits{}).Extract(archive)
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "good.js", files[0].Path)
	})
	t.Run("replace", func(t *testing.T) {
		files, err := NewExtractor([]string{"js"}, appcfg.DecodePolicyReplace, ExtractLimits{}).Extract(archive)
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "a\uFFFDb", files[0].Content)
	})
	t.Run("fail", func(t *testing.T) {
		_, err := NewExtractor([]string{"js"}, appcfg.DecodePolicyFail, ExtractLimits{}).Extract(archive)
		assert.ErrorIs(t, err, ErrExtract)
	})
}

func TestExtractCorruptArchive(t *testing.T) {
	_, err := NewExtractor([]string{"js"}, "", ExtractLimits{}).Extract([]byte("not a zip"))
	assert.ErrorIs(t, err, ErrExtract)
}

func TestExtractLimits(t *testing.T) {
	archive := buildZip(t,
		zipEntry{name: "r/small.js", body: []byte(strings.Repeat("s", 10))},
		zipEntry{name: "r/huge.js", body: []byte(strings.Repeat("h", 64))},
		zipEntry{name: "r/other.js", body: []byte(strings.Repeat("o", 10))},
	)

	t.Run("oversized file is skipped", func(t *testing.T) {
		files, err := NewExtractor([]string{"js"}, "", ExtractLimits{MaxFileBytes: 32}).Extract(archive)
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "small.js", files[0].Path)
		assert.Equal(t, "other.js", files[1].Path)
	})
	t.Run("total cap fails extraction", func(t *testing.T) {
		_, err := NewExtractor([]string{"js"}, "", ExtractLimits{MaxFileBytes: 32, MaxTotalBytes: 15}).Extract(archive)
		assert.ErrorIs(t, err, ErrExtract)
	})
	t.Run("unlimited", func(t *testing.T) {
		files, err := NewExtractor([]string{"js"}, "", ExtractLimits{}).Extract(archive)
		require.NoError(t, err)
		assert.Len(t, files, 3)
	})
}

func TestChunk(t *testing.T) {
	c := NewChunker(1000, 4)
	files := []SourceFile{
		{Path: "a.js", Content: strings.Repeat("a", 200)},
		{Path: "b.ts", Content: strings.Repeat("b", 300)},
		{Path: "c.py", Content: strings.Repeat("c", 5000)},
	}
	batches := c.Chunk(files)
	require.Len(t, batches, 2)

	assert.Equal(t, 0, batches[0].Index)
	assert.Equal(t, []string{"a.js", "b.ts"}, batches[0].Paths)
	assert.Equal(t, renderFile(files[0])+renderFile(files[1]), batches[0].Content)
	assert.LessOrEqual(t, batches[0].Tokens, 1000)

	assert.Equal(t, 1, batches[1].Index)
	assert.Equal(t, []string{"c.py"}, batches[1].Paths)
	assert.Greater(t, batches[1].Tokens, 1000)
}

func TestChunkFlushesBeforeOversizedFile(t *testing.T) {
	c := NewChunker(100, 4)
	files := []SourceFile{
		{Path: "a", Content: strings.Repeat("x", 100)},
		{Path: "big", Content: strings.Repeat("y", 1000)},
		{Path: "b", Content: strings.Repeat("z", 100)},
		{Path: "c", Content: strings.Repeat("w", 100)},
		{Path: "d", Content: strings.Repeat("v", 300)},
	}
	batches := c.Chunk(files)

	var paths [][]string
	var joined strings.Builder
	for i, b := range batches {
		assert.Equal(t, i, b.Index)
		assert.NotEmpty(t, b.Paths)
		if len(b.Paths) > 1 {
			assert.LessOrEqual(t, b.Tokens, 100)
		}
		paths = append(paths, b.Paths)
		joined.WriteString(b.Content)
	}
	assert.Equal(t, [][]string{{"a"}, {"big"}, {"b", "c"}, {"d"}}, paths)

	var want strings.Builder
	for _, f := range files {
		want.WriteString(renderFile(f))
	}
	assert.Equal(t, want.String(), joined.String())
}

func TestChunkEmpty(t *testing.T) {
	assert.Empty(t, NewChunker(100, 4).Chunk(nil))
}

func TestEstimateTokens(t *testing.T) {
	c := NewChunker(100, 4)
	assert.Equal(t, 0, c.EstimateTokens(""))
	assert.Equal(t, 1, c.EstimateTokens("abc"))
	assert.Equal(t, 1, c.EstimateTokens("abcd"))
	assert.Equal(t, 2, c.EstimateTokens("abcde"))
	assert.Equal(t, 1, c.EstimateTokens("héé"))
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    *Verdict
		wantErr bool
	}{
		{
			name: "fenced",
			in:   "Here you go:\n```json\n{\"authenticity_score\": 72, \"reasoning\": \"Inconsistent naming.\", \"writing_style\": \"human-like\", \"confidence_level\": \"high\"}\n```",
			want: &Verdict{AuthenticityScore: 72, Reasoning: "Inconsistent naming.", WritingStyle: "human-like", ConfidenceLevel: ConfidenceHigh},
		},
		{
			name: "bare",
			in:   `{"authenticity_score": 40.5, "reasoning": "Uniform", "writing_style": "AI-like", "confidence_level": "Medium"}`,
			want: &Verdict{AuthenticityScore: 40.5, Reasoning: "Uniform", WritingStyle: "AI-like", ConfidenceLevel: ConfidenceMedium},
		},
		{
			name: "prose wrapped",
			in:   `Sure! {"authenticity_score": "85", "confidence_level": "LOW"} Hope that helps.`,
			want: &Verdict{AuthenticityScore: 85, Reasoning: defaultReasoning, WritingStyle: defaultWritingStyle, ConfidenceLevel: ConfidenceLow},
		},
		{
			name: "clamped and unknown confidence",
			in:   `{"authenticity_score": 150, "confidence_level": "certain"}`,
			want: &Verdict{AuthenticityScore: 100, Reasoning: defaultReasoning, WritingStyle: defaultWritingStyle, ConfidenceLevel: ConfidenceLow},
		},
		{
			name: "non numeric score",
			in:   `{"authenticity_score": "[0-100]"}`,
			want: &Verdict{AuthenticityScore: 0, Reasoning: defaultReasoning, WritingStyle: defaultWritingStyle, ConfidenceLevel: ConfidenceLow},
		},
		{
			name: "wrongly typed fields fall back",
			in:   `{"authenticity_score": 72, "reasoning": ["a", "b"], "writing_style": {"label": "hybrid"}, "confidence_level": 3}`,
			want: &Verdict{AuthenticityScore: 72, Reasoning: defaultReasoning, WritingStyle: defaultWritingStyle, ConfidenceLevel: ConfidenceLow},
		},
		{
			name: "null fields",
			in:   `{"authenticity_score": null, "reasoning": null, "writing_style": "  ", "confidence_level": null}`,
			want: &Verdict{AuthenticityScore: 0, Reasoning: defaultReasoning, WritingStyle: defaultWritingStyle, ConfidenceLevel: ConfidenceLow},
		},
		{name: "not json", in: "I cannot analyze this code.", wantErr: true},
		{name: "truncated object", in: `{"authenticity_score": 72,`, wantErr: true},
		{name: "fenced invalid json", in: "```json\n{\"authenticity_score\": }\n```", wantErr: true},
		{name: "prose around malformed object", in: `Result: {"authenticity_score": 72,, "reasoning": } done`, wantErr: true},
		{name: "array", in: `[1, 2, 3]`, wantErr: true},
		{name: "empty", in: "   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerdict(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type staticGenerator string

func (g staticGenerator) Name() string { return "static" }

func (g staticGenerator) Generate(context.Context, string, string) (string, error) {
	return string(g), nil
}

func TestAnalyzerRejectsInvalidJSON(t *testing.T) {
	a := NewAnalyzer(staticGenerator(`{"authenticity_score": 72, "reasoning": "cut off`))
	_, err := a.Analyze(context.Background(), Batch{Index: 3, Content: "x"})
	assert.ErrorIs(t, err, ErrAnalysis)
	assert.Contains(t, err.Error(), "batch 3")
}

func TestAggregate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 999, time.UTC)
	verdicts := []Verdict{
		{AuthenticityScore: 80, Reasoning: "Clean code. Generic names.", ConfidenceLevel: ConfidenceMedium},
		{AuthenticityScore: 60, Reasoning: "Generic names. Sparse comments", ConfidenceLevel: ConfidenceHigh},
		{AuthenticityScore: 40, Reasoning: "Odd shortcuts.", ConfidenceLevel: ConfidenceLow},
	}
	rec := Aggregate("repo-1", verdicts, 4, now)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "repo-1", rec.RepoID)
	assert.InDelta(t, 60, rec.AuthenticityScore, 1e-9)
	assert.Equal(t, ConfidenceMedium, rec.ConfidenceLevel)
	assert.Equal(t, "Clean code. Generic names. Sparse comments", rec.Reasoning)
	assert.Equal(t, 4, rec.BatchCount)
	assert.Equal(t, now.Truncate(time.Second), rec.CreatedAt)
}

func TestAggregateEmpty(t *testing.T) {
	rec := Aggregate("repo-1", nil, 0, time.Now())
	assert.Zero(t, rec.AuthenticityScore)
	assert.Equal(t, ConfidenceLow, rec.ConfidenceLevel)
	assert.Empty(t, rec.Reasoning)
}

func TestErrorKinds(t *testing.T) {
	err := newError(KindFetch, "download archive", assert.AnError)
	assert.ErrorIs(t, err, ErrFetch)
	assert.NotErrorIs(t, err, ErrAuth)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 502, HTTPStatus(err))
	assert.Equal(t, 401, HTTPStatus(newError(KindAuth, "", nil)))
	assert.Equal(t, 422, HTTPStatus(newError(KindExtract, "", nil)))
	assert.Equal(t, 500, HTTPStatus(assert.AnError))
	assert.Equal(t, "failed to save analysis results", PublicMessage(newError(KindPersistence, "save", assert.AnError)))
}
