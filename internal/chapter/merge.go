package chapter

// Merge pairs every chapter with the start of the one after it.
//
// chapters must be in playback order: parts in file-name order, markers in
// tag order within a part. The result has one chapter per input with title
// and start preserved. A chapter's end is the next chapter's start, except
// when the next chapter begins at the very start of a file: then the end is
// left Unknown and the chapter runs to the end of its own file. The last
// chapter always ends Unknown.
//
// The next start is assigned even when it lies in another file and is not a
// file start. Callers detect that case with Chapter.SpansFiles.
func Merge(chapters []Chapter) []Chapter {
	merged := make([]Chapter, len(chapters))
	for i, c := range chapters {
		end := Unknown
		if i+1 < len(chapters) {
			if next := chapters[i+1].Start(); !next.IsStartAnchor() {
				end = next
			}
		}
		merged[i] = c.WithEnd(end)
	}
	return merged
}
