package boltstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"sort"

	bolt "go.etcd.io/bbolt"

	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/search"
)

type tx struct {
	tx *bolt.Tx
}

func pinNotFound(id library.PinID) error {
	return failure.Newf(failure.NotFound, "store.pin", "no pin with id %s", id)
}

func photoNotFound(id library.PhotoID) error {
	return failure.Newf(failure.NotFound, "store.photo", "no photo with id %s", id)
}

func (t *tx) InsertPin(pin *library.Pin) error {
	b := t.tx.Bucket(pinsBucket)
	if b.Get([]byte(pin.ID)) != nil {
		return failure.Newf(failure.Invalid, "store.insertPin", "pin %s already exists", pin.ID)
	}
	encoded, err := json.Marshal(pin)
	if err != nil {
		return err
	}
	return b.Put([]byte(pin.ID), encoded)
}

func (t *tx) GetPin(id library.PinID) (*library.Pin, error) {
	v := t.tx.Bucket(pinsBucket).Get([]byte(id))
	if v == nil {
		return nil, pinNotFound(id)
	}
	var pin library.Pin
	if err := json.Unmarshal(v, &pin); err != nil {
		return nil, err
	}
	return &pin, nil
}

func (t *tx) ListPins() ([]*library.Pin, error) {
	pins := make([]*library.Pin, 0)
	err := t.tx.Bucket(pinsBucket).ForEach(func(k, v []byte) error {
		var pin library.Pin
		if err := json.Unmarshal(v, &pin); err != nil {
			return err
		}
		pins = append(pins, &pin)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pins, func(i, j int) bool {
		if pins[i].Created.Equal(pins[j].Created) {
			return pins[i].ID < pins[j].ID
		}
		return pins[i].Created.Before(pins[j].Created)
	})
	return pins, nil
}

func (t *tx) DeletePin(id library.PinID) error {
	b := t.tx.Bucket(pinsBucket)
	if b.Get([]byte(id)) == nil {
		return pinNotFound(id)
	}
	if _, err := t.DeletePhotosOfPin(id); err != nil {
		return err
	}
	if err := deleteNested(t.tx.Bucket(pinPhotosBucket), []byte(id)); err != nil {
		return err
	}
	if err := deleteNested(t.tx.Bucket(pinURLsBucket), []byte(id)); err != nil {
		return err
	}
	return b.Delete([]byte(id))
}

func (t *tx) InsertPhotos(photos []*library.Photo) error {
	photosB := t.tx.Bucket(photosBucket)
	for _, p := range photos {
		if p.ID == "" || p.URL == "" {
			return failure.Newf(failure.Invalid, "store.insertPhotos", "photo '%s' needs an id and a URL", p.ID)
		}
		if t.tx.Bucket(pinsBucket).Get([]byte(p.Pin)) == nil {
			return pinNotFound(p.Pin)
		}
		if photosB.Get([]byte(p.ID)) != nil {
			return failure.Newf(failure.Invalid, "store.insertPhotos", "photo %s already exists", p.ID)
		}
		urls, err := t.tx.Bucket(pinURLsBucket).CreateBucketIfNotExists([]byte(p.Pin))
		if err != nil {
			return err
		}
		urlKey := search.URLKey(p.URL)
		if urls.Get(urlKey) != nil {
			return failure.Newf(failure.Invalid, "store.insertPhotos", "pin %s already has a photo for %s", p.Pin, p.URL)
		}
		byPin, err := t.tx.Bucket(pinPhotosBucket).CreateBucketIfNotExists([]byte(p.Pin))
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := photosB.Put([]byte(p.ID), encoded); err != nil {
			return err
		}
		if len(p.Image) > 0 {
			if err := t.tx.Bucket(imagesBucket).Put([]byte(p.ID), p.Image); err != nil {
				return err
			}
		}
		if err := urls.Put(urlKey, []byte(p.ID)); err != nil {
			return err
		}
		if err := byPin.Put(positionKey(p), []byte(p.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) FindPhotos(filter library.PhotoFilter) ([]*library.Photo, error) {
	found := make([]*library.Photo, 0)
	collect := func(v []byte) error {
		var photo library.Photo
		if err := json.Unmarshal(v, &photo); err != nil {
			return err
		}
		if filter.Matches(&photo) {
			found = append(found, &photo)
		}
		return nil
	}
	photosB := t.tx.Bucket(photosBucket)
	if filter.Pin != "" {
		byPin := t.tx.Bucket(pinPhotosBucket).Bucket([]byte(filter.Pin))
		if byPin == nil {
			return found, nil
		}
		err := byPin.ForEach(func(_, id []byte) error {
			if v := photosB.Get(id); v != nil {
				return collect(v)
			}
			return nil
		})
		return found, err
	}
	if err := photosB.ForEach(func(_, v []byte) error { return collect(v) }); err != nil {
		return nil, err
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Pin == found[j].Pin {
			return found[i].Position < found[j].Position
		}
		return found[i].Pin < found[j].Pin
	})
	return found, nil
}

func (t *tx) CountPhotos(pin library.PinID) (int, error) {
	byPin := t.tx.Bucket(pinPhotosBucket).Bucket([]byte(pin))
	if byPin == nil {
		return 0, nil
	}
	count := 0
	c := byPin.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		count++
	}
	return count, nil
}

func (t *tx) GetPhoto(id library.PhotoID) (*library.Photo, error) {
	v := t.tx.Bucket(photosBucket).Get([]byte(id))
	if v == nil {
		return nil, photoNotFound(id)
	}
	var photo library.Photo
	if err := json.Unmarshal(v, &photo); err != nil {
		return nil, err
	}
	if img := t.tx.Bucket(imagesBucket).Get([]byte(id)); img != nil {
		// bbolt memory is only valid during the transaction
		photo.Image = bytes.Clone(img)
	}
	return &photo, nil
}

func (t *tx) UpdatePhoto(photo *library.Photo) error {
	existing, err := t.GetPhoto(photo.ID)
	if err != nil {
		return err
	}
	if existing.Pin != photo.Pin || existing.URL != photo.URL || existing.Position != photo.Position {
		return failure.Newf(failure.Invalid, "store.updatePhoto", "pin, URL and position of photo %s cannot change", photo.ID)
	}
	encoded, err := json.Marshal(photo)
	if err != nil {
		return err
	}
	if err := t.tx.Bucket(photosBucket).Put([]byte(photo.ID), encoded); err != nil {
		return err
	}
	if len(photo.Image) > 0 {
		return t.tx.Bucket(imagesBucket).Put([]byte(photo.ID), photo.Image)
	}
	return nil
}

func (t *tx) DeletePhotos(ids []library.PhotoID) (int, error) {
	deleted := 0
	for _, id := range ids {
		photo, err := t.GetPhoto(id)
		if failure.KindOf(err) == failure.NotFound {
			continue
		}
		if err != nil {
			return deleted, err
		}
		if err := t.deletePhoto(photo); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (t *tx) DeletePhotosOfPin(pin library.PinID) (int, error) {
	byPin := t.tx.Bucket(pinPhotosBucket).Bucket([]byte(pin))
	if byPin == nil {
		return 0, nil
	}
	var ids [][]byte
	if err := byPin.ForEach(func(_, id []byte) error {
		ids = append(ids, bytes.Clone(id))
		return nil
	}); err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := t.tx.Bucket(photosBucket).Delete(id); err != nil {
			return 0, err
		}
		if err := t.tx.Bucket(imagesBucket).Delete(id); err != nil {
			return 0, err
		}
	}
	if err := deleteNested(t.tx.Bucket(pinPhotosBucket), []byte(pin)); err != nil {
		return 0, err
	}
	if err := deleteNested(t.tx.Bucket(pinURLsBucket), []byte(pin)); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (t *tx) deletePhoto(p *library.Photo) error {
	if err := t.tx.Bucket(photosBucket).Delete([]byte(p.ID)); err != nil {
		return err
	}
	if err := t.tx.Bucket(imagesBucket).Delete([]byte(p.ID)); err != nil {
		return err
	}
	if byPin := t.tx.Bucket(pinPhotosBucket).Bucket([]byte(p.Pin)); byPin != nil {
		if err := byPin.Delete(positionKey(p)); err != nil {
			return err
		}
	}
	if urls := t.tx.Bucket(pinURLsBucket).Bucket([]byte(p.Pin)); urls != nil {
		if err := urls.Delete(search.URLKey(p.URL)); err != nil {
			return err
		}
	}
	return nil
}

// positionKey orders the photos of a pin by position, the id keeps keys
// unique
func positionKey(p *library.Photo) []byte {
	key := make([]byte, 4, 4+len(p.ID))
	binary.BigEndian.PutUint32(key, uint32(p.Position))
	return append(key, p.ID...)
}

func deleteNested(parent *bolt.Bucket, name []byte) error {
	if parent.Bucket(name) == nil {
		return nil
	}
	return parent.DeleteBucket(name)
}
