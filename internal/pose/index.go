package pose

import (
	"errors"
	"sort"
	"sync/atomic"
)

var (
	// ErrNotReady is returned by queries issued before a dataset is published.
	ErrNotReady = errors.New("annotation dataset not loaded")
	// ErrAlreadyPublished is returned when Publish is called a second time.
	ErrAlreadyPublished = errors.New("annotation dataset already published")
)

// Index owns a Dataset and answers time-based queries over it.
//
// The dataset is published once, typically from an asynchronous loader, and
// is read-only afterwards, so queries from any goroutine need no locking.
type Index struct {
	ds atomic.Pointer[Dataset]
}

// NewIndex returns an Index that is not ready until Publish is called.
func NewIndex() *Index {
	return &Index{}
}

// IndexOf returns an Index already holding ds.
func IndexOf(ds *Dataset) (*Index, error) {
	ix := NewIndex()
	if err := ix.Publish(ds); err != nil {
		return nil, err
	}
	return ix, nil
}

// Publish hands the loaded dataset to the index. The dataset must satisfy
// the keyframe ordering invariant and can be published only once.
func (ix *Index) Publish(ds *Dataset) error {
	if ds == nil {
		return errors.New("publish: nil dataset")
	}
	if err := ds.Validate(); err != nil {
		return err
	}
	if !ix.ds.CompareAndSwap(nil, ds) {
		return ErrAlreadyPublished
	}
	return nil
}

// Ready reports whether a dataset has been published.
func (ix *Index) Ready() bool {
	return ix.ds.Load() != nil
}

// Dataset returns the published dataset.
func (ix *Index) Dataset() (*Dataset, error) {
	ds := ix.ds.Load()
	if ds == nil {
		return nil, ErrNotReady
	}
	return ds, nil
}

// TracksActiveAt returns every track whose segment contains t, in dataset
// order. An empty result is not an error.
func (ix *Index) TracksActiveAt(t TimeOffset) ([]*Track, error) {
	ds, err := ix.Dataset()
	if err != nil {
		return nil, err
	}
	active := make([]*Track, 0, len(ds.Tracks))
	for i := range ds.Tracks {
		if ds.Tracks[i].Segment.Contains(t) {
			active = append(active, &ds.Tracks[i])
		}
	}
	return active, nil
}

// BracketingKeyframes finds the first keyframe strictly after t (curr) and
// the keyframe immediately before it (prev).
//
// curr is nil when t is at or past the last keyframe; prev is nil when curr
// is the first keyframe.
func (ix *Index) BracketingKeyframes(track *Track, t TimeOffset) (prev, curr *Keyframe) {
	return bracket(track, t)
}

func bracket(track *Track, t TimeOffset) (prev, curr *Keyframe) {
	if track == nil {
		return nil, nil
	}
	kfs := track.Keyframes
	i := sort.Search(len(kfs), func(i int) bool { return kfs[i].Time > t })
	if i == len(kfs) {
		return nil, nil
	}
	curr = &kfs[i]
	if i > 0 {
		prev = &kfs[i-1]
	}
	return prev, curr
}
