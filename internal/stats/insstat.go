package stats

import (
	"errors"

	"github.com/born-ml/boost/internal/syncmem"
)

// InsStat is the per-instance state of one device: gradient pairs of the tree
// being grown, the node each instance currently sits in, and the running
// predictions (num_class * n, class-major) shared with the tree builder.
type InsStat struct {
	NInstances int
	GH         *syncmem.Array[GHPair]
	NID        *syncmem.Array[int32]
	YPredict   *syncmem.Array[float32]
}

// NewInsStat allocates gradient and node buffers on device for n instances.
// yPredict is borrowed from the caller.
func NewInsStat(alloc *syncmem.Allocators, device, n int, yPredict *syncmem.Array[float32]) *InsStat {
	return &InsStat{
		NInstances: n,
		GH:         syncmem.NewArray[GHPair](alloc, device, n),
		NID:        syncmem.NewArray[int32](alloc, device, n),
		YPredict:   yPredict,
	}
}

// Reset loads the k-th gradient stream from gradients and puts every instance
// back into the root node.
func (s *InsStat) Reset(device, k int, gradients *syncmem.Array[GHPair]) error {
	all, err := gradients.DeviceData(device)
	if err != nil {
		return err
	}
	gh, err := s.GH.DeviceData(device)
	if err != nil {
		return err
	}
	copy(gh, all[k*s.NInstances:(k+1)*s.NInstances])

	nid, err := s.NID.DeviceData(device)
	if err != nil {
		return err
	}
	clear(nid)
	return nil
}

// Release frees the owned buffers.
func (s *InsStat) Release() error {
	return errors.Join(s.GH.Release(), s.NID.Release())
}
