package editor

// Diff reduces the difference between two versions of a document to the
// single range of the old text that was replaced. ok is false when the
// texts are identical.
func Diff(oldText, newText string) (Range, bool) {
	if oldText == newText {
		return Range{}, false
	}

	oldDoc := NewTextDocument(oldText)
	newDoc := NewTextDocument(newText)
	oldLines, newLines := oldDoc.lines, newDoc.lines

	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < len(oldLines)-prefix && suffix < len(newLines)-prefix &&
		oldLines[len(oldLines)-1-suffix] == newLines[len(newLines)-1-suffix] {
		suffix++
	}

	lastOld := len(oldLines) - 1 - suffix
	lastNew := len(newLines) - 1 - suffix

	// Pure insertion or deletion of whole lines anchors at the prefix row
	if lastOld < prefix || lastNew < prefix {
		row := prefix
		if row >= len(oldLines) {
			row = len(oldLines) - 1
		}
		if lastOld < prefix {
			return Range{Start: Position{Row: row}, End: Position{Row: row}}, true
		}
		return Range{Start: Position{Row: prefix}, End: Position{Row: lastOld + 1}}, true
	}

	startLine := oldLines[prefix]
	startCol := commonPrefix(startLine, newLines[prefix])

	endLine := oldLines[lastOld]
	endCol := len(endLine) - commonSuffix(endLine, newLines[lastNew])
	if prefix == lastOld && lastNew == prefix && endCol < startCol {
		endCol = startCol
	}

	return Range{
		Start: Position{Row: prefix, Column: startCol},
		End:   Position{Row: lastOld, Column: endCol},
	}, true
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func commonSuffix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}
