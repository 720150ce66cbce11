package text

// PadSequences returns sequences of exactly maxlen elements. Short sequences
// are left-padded with zeros and long ones keep their last maxlen elements.
func PadSequences(seqs [][]int, maxlen int) [][]int {
	out := make([][]int, len(seqs))
	for i, seq := range seqs {
		row := make([]int, maxlen)
		if len(seq) >= maxlen {
			copy(row, seq[len(seq)-maxlen:])
		} else {
			copy(row[maxlen-len(seq):], seq)
		}
		out[i] = row
	}
	return out
}
