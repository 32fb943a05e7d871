package renderer

import (
	"testing"

	"github.com/hyungman/SpRay/mpi"
)

func TestNewRejectsBadOptions(t *testing.T) {
	comm, err := mpi.Init(mpi.Options{})
	if err != nil {
		t.Fatalf("mpi init: %v", err)
	}
	defer comm.Finalize()

	if _, err := New(Options{Partition: PartitionImage, CacheSize: -1}, comm); err != ErrSceneNotDefined {
		t.Fatalf("expected ErrSceneNotDefined; got %v", err)
	}

	opts := Options{
		ModelDescriptor: "scene.descriptor",
		Partition:       PartitionInsitu,
		CacheSize:       4,
	}
	if _, err := New(opts, comm); err != ErrCacheWithInsitu {
		t.Fatalf("expected ErrCacheWithInsitu; got %v", err)
	}
}
