package domain

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"time"

	"github.com/h2non/filetype"
	"github.com/rwcarlsen/goexif/exif"

	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
)

type MediaMetaData struct {
	DateTaken   time.Time
	Location    *gps.Coordinates
	Orientation Orientation
}

type metaDataReader func(io.Reader, *MediaMetaData) error
type photoDecoder func(io.Reader) (image.Image, error)
type photoEncoder func(image.Image, io.Writer) error

type Format interface {
	ID() string
	Mime() string
	DecodeMetaData(in io.Reader, meta *MediaMetaData) error
	Decode(in io.Reader) (image.Image, error)
	Encode(img image.Image, out io.Writer) error
}

type formatImpl struct {
	id         string
	mime       string
	metaReader metaDataReader
	decoder    photoDecoder
	encoder    photoEncoder
}

var (
	formatsById = map[string]Format{}

	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrNoDecoderAvailable = errors.New("no decoder available for this format")
	ErrNoEncoderAvailable = errors.New("no encoder available for this format")
)

var (
	JPEG Format
	PNG  Format
	GIF  Format
)

func init() {
	JPEG = RegisterFormat("jpg", "image/jpeg", exifReader, jpeg.Decode, jpegEncode)
	PNG = RegisterFormat("png", "image/png", nil, png.Decode, pngEncode)
	GIF = RegisterFormat("gif", "image/gif", nil, gif.Decode, gifEncode)
}

func RegisterFormat(extension string, mime string,
	metaReader metaDataReader,
	decoder photoDecoder,
	encoder photoEncoder) (format Format) {
	format = formatImpl{
		id:         extension,
		mime:       mime,
		metaReader: metaReader,
		decoder:    decoder,
		encoder:    encoder,
	}
	formatsById[extension] = format
	return
}

func FormatForExt(ext string) (Format, bool) {
	f, found := formatsById[ext]
	return f, found
}

// FormatOf sniffs the format of the given image bytes, only the first
// few hundred bytes are looked at
func FormatOf(content []byte) (Format, error) {
	header := content
	if len(header) > 512 {
		header = header[:512]
	}
	kind, err := filetype.Match(header)
	if err != nil {
		return nil, err
	}
	if f, found := formatsById[kind.Extension]; found {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind.MIME.Value)
}

// MetaDataOf decodes whatever meta-data can be found in content. Missing
// meta-data is not an error, the zero value is returned instead.
func MetaDataOf(format Format, content []byte) MediaMetaData {
	meta := MediaMetaData{Orientation: Normal}
	_ = format.DecodeMetaData(bytes.NewReader(content), &meta)
	return meta
}

func (f formatImpl) ID() string {
	return f.id
}

func (f formatImpl) Mime() string {
	return f.mime
}

func (f formatImpl) String() string {
	return f.id
}

// DecodeMetaData will decode meta-data as per this format from the given
// reader and store it in the given metadata instance
func (f formatImpl) DecodeMetaData(in io.Reader, meta *MediaMetaData) error {
	if f.metaReader != nil {
		return f.metaReader(in, meta)
	}
	return nil
}

// Decode decodes the binary data from the given reader as an image in this format
func (f formatImpl) Decode(in io.Reader) (image.Image, error) {
	if f.decoder == nil {
		return nil, ErrNoDecoderAvailable
	}
	return f.decoder(in)
}

// Encode encodes this image in the current format into the given writer
func (f formatImpl) Encode(img image.Image, out io.Writer) error {
	if f.encoder == nil {
		return ErrNoEncoderAvailable
	}
	return f.encoder(img, out)
}

func exifReader(in io.Reader, meta *MediaMetaData) error {
	ex, err := exif.Decode(in)
	if err != nil {
		return err
	}
	if dateTaken, err := ex.DateTime(); err == nil {
		meta.DateTaken = dateTaken
	}
	if lat, long, err := ex.LatLong(); err == nil {
		location := gps.NewCoordinates(lat, long)
		meta.Location = &location
	}
	if tag, err := ex.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			meta.Orientation = Orientation(v)
		}
	}
	return nil
}

func jpegEncode(img image.Image, out io.Writer) error {
	return jpeg.Encode(out, img, nil)
}

func pngEncode(img image.Image, out io.Writer) error {
	return png.Encode(out, img)
}

func gifEncode(img image.Image, out io.Writer) error {
	return gif.Encode(out, img, nil)
}
