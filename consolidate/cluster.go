// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package consolidate

// Density-based clustering over unit vectors. Points are neighbors when
// their cosine similarity meets the threshold; clusters grow from core
// points with at least minPoints neighbors. Noise points are returned as
// singleton clusters instead of being dropped, so every input index
// appears in exactly one output cluster.

const (
	// DefaultClusterThreshold is the cosine similarity above which two
	// labels are considered phrasings of the same topic.
	DefaultClusterThreshold = 0.80

	// minPoints is the DBSCAN core-point density requirement, counting
	// the point itself.
	minPoints = 3
)

const (
	unvisited = 0
	noise     = -1
)

// clusterVectors groups vector indices by density. All vectors must be
// unit length and share a dimension. Runs in O(n^2) comparisons with no
// external calls, so it stays fast for tens of thousands of labels.
func clusterVectors(vectors [][]float32, threshold float32) [][]int {
	n := len(vectors)
	if n == 0 {
		return nil
	}

	// labels[i]: unvisited, noise, or 1-based cluster id.
	labels := make([]int, n)

	neighborsOf := func(i int) []int {
		var nb []int
		for j := 0; j < n; j++ {
			if CosineSimilarity(vectors[i], vectors[j]) >= threshold {
				nb = append(nb, j)
			}
		}
		return nb
	}

	clusterID := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}

		nb := neighborsOf(i)
		if len(nb) < minPoints {
			labels[i] = noise
			continue
		}

		clusterID++
		labels[i] = clusterID

		// Expand: the frontier grows as new core points are found.
		frontier := nb
		for k := 0; k < len(frontier); k++ {
			j := frontier[k]
			if labels[j] == noise {
				labels[j] = clusterID // border point
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = clusterID

			jnb := neighborsOf(j)
			if len(jnb) >= minPoints {
				frontier = append(frontier, jnb...)
			}
		}
	}

	clusters := make([][]int, clusterID)
	for i, label := range labels {
		if label == noise {
			clusters = append(clusters, []int{i})
			continue
		}
		clusters[label-1] = append(clusters[label-1], i)
	}
	return clusters
}

// centroidNearest returns the member index closest to the cluster's mean
// vector. The member list must be non-empty.
func centroidNearest(vectors [][]float32, members []int) int {
	if len(members) == 1 {
		return members[0]
	}

	dim := len(vectors[members[0]])
	centroid := make([]float32, dim)
	for _, m := range members {
		for d, val := range vectors[m] {
			centroid[d] += val
		}
	}
	for d := range centroid {
		centroid[d] /= float32(len(members))
	}
	centroid = NormalizeVector(centroid)

	best := members[0]
	var bestSim float32 = -2
	for _, m := range members {
		if sim := CosineSimilarity(centroid, vectors[m]); sim > bestSim {
			bestSim = sim
			best = m
		}
	}
	return best
}
