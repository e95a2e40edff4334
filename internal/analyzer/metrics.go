package analyzer

import (
	"image"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// MetricsCalculator handles image metrics computation
type MetricsCalculator interface {
	AverageLuminance(img image.Image) float64
	LaplacianVariance(gray *image.Gray) float64
	Brightness(gray *image.Gray) float64
}

type metricsCalculator struct {
	slicePool sync.Pool
}

// NewMetricsCalculator creates a metrics calculator backed by gonum/stat
func NewMetricsCalculator() MetricsCalculator {
	return &metricsCalculator{
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 1024)
			},
		},
	}
}

// AverageLuminance returns the mean HSV value in [0,1], computed in parallel strips
func (mc *metricsCalculator) AverageLuminance(img image.Image) float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return 0
	}

	numWorkers := runtime.NumCPU()
	if height < numWorkers {
		numWorkers = height
	}
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	results := make(chan float64, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		startY := bounds.Min.Y + i*rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > bounds.Max.Y {
			endY = bounds.Max.Y
		}
		if startY >= endY {
			continue
		}
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()
			var lum float64
			for y := startY; y < endY; y++ {
				for x := bounds.Min.X; x < bounds.Max.X; x++ {
					r, g, b, _ := img.At(x, y).RGBA()
					lum += float64(max(r, g, b)) / 65535.0
				}
			}
			results <- lum
		}(startY, endY)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var total float64
	for lum := range results {
		total += lum
	}
	return total / float64(width*height)
}

// LaplacianVariance computes the variance of the 4-neighbour Laplacian
func (mc *metricsCalculator) LaplacianVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return 0
	}

	data := mc.slicePool.Get().([]float64)
	defer func() { mc.slicePool.Put(data[:0]) }()

	if cap(data) < (width-2)*(height-2) {
		data = make([]float64, 0, (width-2)*(height-2))
	}

	// Laplacian kernel: [0, 1, 0; 1, -4, 1; 0, 1, 0]
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			top := float64(gray.GrayAt(x, y-1).Y)
			bottom := float64(gray.GrayAt(x, y+1).Y)
			left := float64(gray.GrayAt(x-1, y).Y)
			right := float64(gray.GrayAt(x+1, y).Y)
			data = append(data, -4*center+top+bottom+left+right)
		}
	}

	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Brightness returns the mean gray level in [0,255]
func (mc *metricsCalculator) Brightness(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return 0
	}

	data := mc.slicePool.Get().([]float64)
	defer func() { mc.slicePool.Put(data[:0]) }()

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			data = append(data, float64(gray.GrayAt(x, y).Y))
		}
	}
	return stat.Mean(data, nil)
}
