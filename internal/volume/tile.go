package volume

import "github.com/pkg/errors"

// Grid is the number of non-overlapping blocks of dim that cover full along
// each axis. Every axis must divide evenly.
func Grid(full, dim [3]int) ([3]int, error) {
	var g [3]int
	for i := 0; i < 3; i++ {
		if dim[i] <= 0 || full[i] <= 0 || full[i]%dim[i] != 0 {
			return g, errors.Wrapf(ErrShape, "subvolume %v does not tile volume %v", dim, full)
		}
		g[i] = full[i] / dim[i]
	}
	return g, nil
}

// Tile splits a row-major (D,H,W) volume into blocks of dim, in raster order
// (depth block outermost). Each block is row-major (d0,d1,d2).
func Tile(data []float32, full, dim [3]int) ([][]float32, error) {
	grid, err := Grid(full, dim)
	if err != nil {
		return nil, err
	}
	if len(data) != full[0]*full[1]*full[2] {
		return nil, errors.Wrapf(ErrShape, "volume of %d elements does not match %v", len(data), full)
	}
	blockSize := dim[0] * dim[1] * dim[2]
	blocks := make([][]float32, 0, grid[0]*grid[1]*grid[2])
	for gz := 0; gz < grid[0]; gz++ {
		for gy := 0; gy < grid[1]; gy++ {
			for gx := 0; gx < grid[2]; gx++ {
				block := make([]float32, blockSize)
				for z := 0; z < dim[0]; z++ {
					for y := 0; y < dim[1]; y++ {
						src := ((gz*dim[0]+z)*full[1]+gy*dim[1]+y)*full[2] + gx*dim[2]
						dst := (z*dim[1] + y) * dim[2]
						copy(block[dst:dst+dim[2]], data[src:src+dim[2]])
					}
				}
				blocks = append(blocks, block)
			}
		}
	}
	return blocks, nil
}

// Untile reassembles (N,channels,d0,d1,d2) block data produced in Tile order
// into a row-major (channels,D,H,W) volume.
func Untile(data []float32, channels int, full, dim [3]int) ([]float32, error) {
	grid, err := Grid(full, dim)
	if err != nil {
		return nil, err
	}
	blockSize := dim[0] * dim[1] * dim[2]
	n := grid[0] * grid[1] * grid[2]
	if len(data) != n*channels*blockSize {
		return nil, errors.Wrapf(ErrShape, "%d elements cannot fill %d blocks of %d channels x %v", len(data), n, channels, dim)
	}
	fullSize := full[0] * full[1] * full[2]
	out := make([]float32, channels*fullSize)
	b := 0
	for gz := 0; gz < grid[0]; gz++ {
		for gy := 0; gy < grid[1]; gy++ {
			for gx := 0; gx < grid[2]; gx++ {
				for c := 0; c < channels; c++ {
					block := data[(b*channels+c)*blockSize : (b*channels+c+1)*blockSize]
					for z := 0; z < dim[0]; z++ {
						for y := 0; y < dim[1]; y++ {
							dst := c*fullSize + ((gz*dim[0]+z)*full[1]+gy*dim[1]+y)*full[2] + gx*dim[2]
							src := (z*dim[1] + y) * dim[2]
							copy(out[dst:dst+dim[2]], block[src:src+dim[2]])
						}
					}
				}
				b++
			}
		}
	}
	return out, nil
}
