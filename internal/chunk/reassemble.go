package chunk

// Reassemble reconstructs a file's content from its chunk sequence by
// taking each chunk's non-overlapping suffix. chunks must be the unmodified
// output of Split for a single file, in index order.
func Reassemble(chunks []Chunk) []byte {
	if len(chunks) == 0 {
		return nil
	}
	var out []byte
	out = append(out, []byte(chunks[0].Text)...)
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		newBytes := cur.ByteEnd - prev.ByteEnd
		if newBytes <= 0 {
			continue
		}
		out = append(out, cur.Text[len(cur.Text)-newBytes:]...)
	}
	return out
}
