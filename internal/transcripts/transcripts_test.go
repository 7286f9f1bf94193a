package transcripts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwire/internal/core"
	"healthwire/internal/persistence"
	"healthwire/internal/personas"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ?t=42", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://m.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"  dQw4w9WgXcQ  ", "dQw4w9WgXcQ", false},
		{"https://vimeo.com/123456", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ExtractVideoID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsYouTubeURL(t *testing.T) {
	assert.True(t, IsYouTubeURL("https://youtu.be/dQw4w9WgXcQ"))
	assert.False(t, IsYouTubeURL("https://example.com/watch?v=dQw4w9WgXcQ"))
}

func TestClean(t *testing.T) {
	raw := "WEBVTT\n\n1\n00:00:01.000 --> 00:00:04.000\n[00:00:01] Welcome back   to the show.\n\n2\n00:00:04,500 --> 00:00:06,000\nToday: ransomware.\n[1:05]\n"
	assert.Equal(t, "Welcome back to the show. Today: ransomware.", Clean(raw))
	assert.Empty(t, Clean("  \n [00:00:00] \n"))
}

func seedPersona(t *testing.T, db *persistence.MemoryDB, slug string) *core.Persona {
	t.Helper()
	p := &core.Persona{Slug: slug, Name: slug, Kind: core.PersonaAnalyst, Enabled: true, Framework: "voice"}
	require.NoError(t, db.Personas().Upsert(context.Background(), p))
	return p
}

func TestImporter_Import(t *testing.T) {
	db := persistence.NewMemoryDB()
	ctx := context.Background()
	p := seedPersona(t, db, "security-sentinel")
	im := NewImporter(db)

	tr, err := im.Import(ctx, ImportRequest{
		PersonaSlug: "security-sentinel",
		Video:       "https://youtu.be/dQw4w9WgXcQ",
		Raw:         "[00:00:01] Patch your VPNs.\n[00:00:03] Then patch them again.",
		Tags:        []string{"Cybersecurity", "cybersecurity"},
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, tr.PersonaID)
	assert.Equal(t, "dQw4w9WgXcQ", tr.VideoID)
	assert.Equal(t, "Patch your VPNs. Then patch them again.", tr.RawTranscript)
	assert.Equal(t, []string{"cybersecurity"}, tr.TopicTags)

	again, err := im.Import(ctx, ImportRequest{PersonaSlug: "security-sentinel", Video: "dQw4w9WgXcQ", Raw: "Updated text."})
	require.NoError(t, err)
	assert.Equal(t, tr.ID, again.ID, "upsert by video id")

	stored, err := db.Transcripts().ListByPersona(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Updated text.", stored[0].RawTranscript)
}

func TestImporter_Errors(t *testing.T) {
	db := persistence.NewMemoryDB()
	seedPersona(t, db, "culture-catalyst")
	im := NewImporter(db)
	ctx := context.Background()

	_, err := im.Import(ctx, ImportRequest{PersonaSlug: "nobody", Video: "dQw4w9WgXcQ", Raw: "text"})
	assert.True(t, errors.Is(err, personas.ErrUnknownPersona))

	_, err = im.Import(ctx, ImportRequest{PersonaSlug: "culture-catalyst", Video: "not a video", Raw: "text"})
	assert.Error(t, err)

	_, err = im.Import(ctx, ImportRequest{PersonaSlug: "culture-catalyst", Video: "dQw4w9WgXcQ", Raw: "[00:00:01]"})
	assert.Error(t, err)
}

func TestSelectExcerpts(t *testing.T) {
	ts := []core.Transcript{
		{RawTranscript: "newest, about budgets", TopicTags: []string{"finance"}},
		{RawTranscript: "older, about ransomware and hipaa", TopicTags: []string{"ransomware", "HIPAA"}},
		{RawTranscript: "oldest, about ransomware", TopicTags: []string{"ransomware"}},
	}

	got := SelectExcerpts(ts, []string{"ransomware", "hipaa"}, 2, 0)
	assert.Equal(t, []string{"older, about ransomware and hipaa", "oldest, about ransomware"}, got)

	got = SelectExcerpts(ts, nil, 1, 6)
	assert.Equal(t, []string{"newest..."}, got)

	assert.Nil(t, SelectExcerpts(ts, nil, 0, 10))
	assert.Nil(t, SelectExcerpts(nil, []string{"ai"}, 3, 10))
}
