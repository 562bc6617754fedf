package domain

import (
	"context"
	"image"
)

type thumbRequest struct {
	content []byte
	f       Format
	o       Orientation
	s       ThumbSize

	resp chan<- thumbResult
}

type thumbResult struct {
	img image.Image
	err error
}

// ParallelThumber bounds the number of thumbnails computed at the same time
type ParallelThumber struct {
	delegate Thumber

	requests chan thumbRequest
}

// NewParallelThumber starts n workers which stop when ctx is done
func NewParallelThumber(ctx context.Context, delegate Thumber, n int) *ParallelThumber {
	if n < 1 {
		n = 1
	}
	thumber := &ParallelThumber{
		delegate: delegate,
		requests: make(chan thumbRequest),
	}
	for i := 0; i < n; i++ {
		go thumber.loop(ctx)
	}
	return thumber
}

func (t *ParallelThumber) CreateThumb(content []byte, f Format, o Orientation, size ThumbSize) (image.Image, error) {
	return t.CreateThumbContext(context.Background(), content, f, o, size)
}

func (t *ParallelThumber) CreateThumbContext(ctx context.Context, content []byte, f Format, o Orientation, size ThumbSize) (image.Image, error) {
	res := make(chan thumbResult, 1)
	req := thumbRequest{content, f, o, size, res}

	select {
	case t.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-res:
		return result.img, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *ParallelThumber) loop(ctx context.Context) {
	for {
		select {
		case req := <-t.requests:
			req.resp <- t.makeThumb(req)
		case <-ctx.Done():
			return
		}
	}
}

func (t *ParallelThumber) makeThumb(r thumbRequest) thumbResult {
	img, err := t.delegate.CreateThumb(r.content, r.f, r.o, r.s)
	return thumbResult{img: img, err: err}
}
