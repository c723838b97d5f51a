package extract

// Worker sizing bounds. Each in-flight batch holds one prompt, one
// response, and decoded topics; perWorkerFootprint is a conservative
// budget for that plus HTTP buffers.
const (
	maxWorkers         = 48
	perWorkerFootprint = 256 << 20 // 256 MiB
)

// ComputeConcurrency derives the extraction worker count from the host
// profile. Extraction workers spend most of their time waiting on the
// completion API, so the count runs ahead of the core count; available
// memory caps it, and memoryBytes == 0 means "don't cap on memory".
func ComputeConcurrency(cores int, memoryBytes uint64) int {
	if cores < 1 {
		cores = 1
	}

	workers := cores * 2
	if memoryBytes > 0 {
		memCap := int(memoryBytes / perWorkerFootprint)
		if memCap < workers {
			workers = memCap
		}
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
