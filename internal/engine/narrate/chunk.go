package narrate

import "strings"

// chunkTranscript splits a transcript into chunks of at most maxChars,
// breaking on sentence boundaries so no sentence is cut mid-way. A transcript
// under the limit comes back as a single chunk.
func chunkTranscript(transcript string, maxChars int) []string {
	if len(transcript) <= maxChars {
		return []string{transcript}
	}

	const separator = ". "
	sentences := strings.Split(transcript, separator)

	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, separator)
		if !strings.HasSuffix(text, ".") {
			text += "."
		}
		chunks = append(chunks, text)
		current = nil
		currentLen = 0
	}

	for _, sentence := range sentences {
		add := len(sentence)
		if len(current) > 0 {
			add += len(separator)
		}
		if currentLen+add > maxChars && len(current) > 0 {
			flush()
			current = []string{sentence}
			currentLen = len(sentence)
			continue
		}
		current = append(current, sentence)
		currentLen += add
	}
	flush()

	return chunks
}
