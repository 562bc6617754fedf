package domain

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/gift"
)

var (
	Small  = ThumbSize{120, "S"}
	Medium = ThumbSize{427, "M"}
	Large  = ThumbSize{640, "L"}

	ThumbSizes = map[string]ThumbSize{
		Small.Name:  Small,
		Medium.Name: Medium,
		Large.Name:  Large,
	}
)

type ThumbSize struct {
	width int
	Name  string
}

func ThumbSizeFromString(name string) (ThumbSize, error) {
	if name == "" {
		return Medium, nil
	}
	size, found := ThumbSizes[name]
	if !found {
		return size, fmt.Errorf("unknown thumb size '%s'", name)
	}
	return size, nil
}

func (size ThumbSize) BoundsOf(img image.Rectangle) image.Rectangle {
	if img.Dx() > img.Dy() {
		return image.Rect(0, 0, size.width, (size.width*img.Dy())/img.Dx())
	}
	return image.Rect(0, 0, (size.width*img.Dx())/img.Dy(), size.width)
}

type Thumber interface {
	CreateThumb(content []byte, format Format, orientation Orientation, size ThumbSize) (image.Image, error)
}

type LocalThumber struct{}

func (t LocalThumber) CreateThumb(content []byte, format Format, orientation Orientation, size ThumbSize) (image.Image, error) {
	img, err := format.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	img = orientation.Apply(img)
	targetSize := size.BoundsOf(img.Bounds())
	thumb := image.NewRGBA(targetSize)
	filter := gift.New(
		gift.ResizeToFit(targetSize.Dx(), targetSize.Dy(), gift.LinearResampling),
	)
	filter.Draw(thumb, img)
	return thumb, nil
}
