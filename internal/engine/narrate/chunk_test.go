package narrate

import (
	"strings"
	"testing"
)

func TestChunkTranscriptSingle(t *testing.T) {
	chunks := chunkTranscript("short transcript. two sentences.", 1000)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "short transcript. two sentences." {
		t.Errorf("single chunk must be the unmodified transcript, got %q", chunks[0])
	}
}

func TestChunkTranscriptSplits(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("This sentence is repeated to build a long transcript for splitting. ")
	}
	transcript := strings.TrimSpace(sb.String())

	maxChars := 500
	chunks := chunkTranscript(transcript, maxChars)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > maxChars+1 { // +1 for the trailing period added on flush
			t.Errorf("chunk %d exceeds max: %d chars", i, len(c))
		}
		if !strings.HasSuffix(c, ".") {
			t.Errorf("chunk %d should end on a sentence boundary: %q", i, c[len(c)-20:])
		}
	}
}

func TestChunkTranscriptPreservesContent(t *testing.T) {
	transcript := "First point. Second point. Third point. Fourth point. Fifth point."
	chunks := chunkTranscript(transcript, 30)

	joined := strings.Join(chunks, " ")
	for _, want := range []string{"First point", "Second point", "Third point", "Fourth point", "Fifth point"} {
		if !strings.Contains(joined, want) {
			t.Errorf("chunking lost %q", want)
		}
	}
}
