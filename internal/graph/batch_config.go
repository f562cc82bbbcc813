package graph

// BatchConfig defines UNWIND batch sizes for the ownership sync
type BatchConfig struct {
	// Files per ownership batch. Each file row carries all of its owners.
	FileBatchSize int
}

// DefaultBatchConfig returns batch sizes for medium repos (~5K files)
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{FileBatchSize: 500}
}

// SmallRepoBatchConfig for repos < 500 files
func SmallRepoBatchConfig() BatchConfig {
	return BatchConfig{FileBatchSize: 100}
}

// BatchConfigFor picks the batch sizes for a sync of the given file count
func BatchConfigFor(files int) BatchConfig {
	if files < 500 {
		return SmallRepoBatchConfig()
	}
	return DefaultBatchConfig()
}

// batches splits n rows into [start, end) windows of at most size rows
func batches(n, size int) [][2]int {
	if size <= 0 {
		size = DefaultBatchConfig().FileBatchSize
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
