package nmea

import "regexp"

// sentencePattern matches one complete sentence: '$', a payload free of '$'
// and '*', then '*' and a two-digit hex checksum.
var sentencePattern = regexp.MustCompile(`\$[^$*]*\*[0-9A-Fa-f]{2}`)

// maxTail bounds how much unterminated input the framer holds between feeds.
// Sentences are at most 82 characters, so anything larger is line noise.
const maxTail = 1024

// Framer extracts complete NMEA sentences from a byte stream fed in
// arbitrary chunks. Incomplete trailing data is held over to the next Feed,
// so a sentence split across reads is emitted exactly once, when its
// checksum suffix arrives.
type Framer struct {
	tail string
}

func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends chunk to any held-over tail and returns every complete
// sentence found, in order. A malformed leading fragment is dropped as soon
// as a later well-formed sentence matches past it.
func (f *Framer) Feed(chunk []byte) []string {
	buf := f.tail + string(chunk)

	locs := sentencePattern.FindAllStringIndex(buf, -1)
	if len(locs) == 0 {
		f.tail = buf
		if len(f.tail) > maxTail {
			f.tail = f.tail[len(f.tail)-maxTail:]
		}
		return nil
	}

	sentences := make([]string, 0, len(locs))
	for _, loc := range locs {
		sentences = append(sentences, buf[loc[0]:loc[1]])
	}
	f.tail = buf[locs[len(locs)-1][1]:]
	return sentences
}
