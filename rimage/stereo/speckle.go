package stereo

// filterSpeckles invalidates 4-connected regions of at most maxSize pixels in which neighbouring
// disparities differ by at most maxDiff raw units.
func filterSpeckles(dm *DisparityMap, maxSize, maxDiff int) {
	w, h := dm.Width, dm.Height
	labels := make([]int32, w*h)
	var label int32
	var stack, region []int
	for start := range dm.Data {
		if labels[start] != 0 || dm.Data[start] == dm.Invalid {
			continue
		}
		label++
		labels[start] = label
		stack = append(stack[:0], start)
		region = region[:0]
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			region = append(region, i)
			x, y := i%w, i/w
			v := int(dm.Data[i])
			visit := func(j int) {
				if labels[j] != 0 || dm.Data[j] == dm.Invalid {
					return
				}
				if d := int(dm.Data[j]) - v; d > maxDiff || -d > maxDiff {
					return
				}
				labels[j] = label
				stack = append(stack, j)
			}
			if x > 0 {
				visit(i - 1)
			}
			if x < w-1 {
				visit(i + 1)
			}
			if y > 0 {
				visit(i - w)
			}
			if y < h-1 {
				visit(i + w)
			}
		}
		if len(region) <= maxSize {
			for _, i := range region {
				dm.Data[i] = dm.Invalid
			}
		}
	}
}
