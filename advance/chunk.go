package advance

// sliceOutput splits a finalized output into chunkSize-byte slices,
// per spec.md §4.4's network-DKG/reconfiguration chunking rule: only
// the final slice carries IsLast=true, and empty data still produces
// one (empty) slice so callers always have at least one slice to emit.
func sliceOutput(keyID [32]byte, data []byte, chunkSize uint32, supportedCurves []uint32, rejected bool) []OutputSlice {
	if chunkSize == 0 {
		chunkSize = uint32(len(data))
		if chunkSize == 0 {
			chunkSize = 1
		}
	}
	if len(data) == 0 {
		return []OutputSlice{{KeyID: keyID, IsLast: true, SupportedCurves: supportedCurves, Rejected: rejected}}
	}

	var out []OutputSlice
	for offset := 0; offset < len(data); offset += int(chunkSize) {
		end := offset + int(chunkSize)
		if end > len(data) {
			end = len(data)
		}
		out = append(out, OutputSlice{
			KeyID:           keyID,
			Bytes:           data[offset:end],
			IsLast:          end == len(data),
			SupportedCurves: supportedCurves,
			Rejected:        rejected,
		})
	}
	return out
}
