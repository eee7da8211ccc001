// Package utils contains small helpers shared by the image pipelines.
package utils

import (
	"image"
	"runtime"
	"sync"

	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// ParallelForEachRow splits [0, rows) into contiguous bands, one per worker, and calls f for
// every row. It returns once every row has been visited.
func ParallelForEachRow(rows int, f func(y int)) {
	if rows <= 0 {
		return
	}
	workers := ParallelFactor
	if workers > rows {
		workers = rows
	}
	band := rows / workers
	var waitGroup sync.WaitGroup
	waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		start := i * band
		end := start + band
		if i == workers-1 {
			end = rows
		}
		utils.PanicCapturingGo(func() {
			defer waitGroup.Done()
			for y := start; y < end; y++ {
				f(y)
			}
		})
	}
	waitGroup.Wait()
}

// ParallelForEachPixel loops through the image and calls f for each [x, y] position. Rows are
// distributed across workers with ParallelForEachRow.
func ParallelForEachPixel(size image.Point, f func(x, y int)) {
	ParallelForEachRow(size.Y, func(y int) {
		for x := 0; x < size.X; x++ {
			f(x, y)
		}
	})
}
