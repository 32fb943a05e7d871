package renderer

import "errors"

var (
	ErrSceneNotDefined    = errors.New("renderer: no scene defined")
	ErrNoCameraConfig     = errors.New("renderer: camera configuration incomplete")
	ErrBadPartition       = errors.New("renderer: unknown partition")
	ErrBadViewMode        = errors.New("renderer: unknown view mode")
	ErrCacheWithInsitu    = errors.New("renderer: cache size is not applicable to the in-situ partition")
	ErrThreadLevel        = errors.New("renderer: funneled thread support unavailable")
	ErrViewModeMultiRank  = errors.New("renderer: view mode requires a single rank")
)
