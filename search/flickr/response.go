package flickr

import (
	"bytes"
	"encoding/json"
	"strconv"

	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/search"
)

// flexInt accepts both 12 and "12"
type flexInt int

func (v *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*v = 0
		return nil
	}
	i, err := strconv.Atoi(string(data))
	if err != nil {
		return err
	}
	*v = flexInt(i)
	return nil
}

// flexString accepts both "12" and 12
type flexString string

func (v *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = flexString(n.String())
	return nil
}

type photo struct {
	ID     flexString `json:"id"`
	Title  string     `json:"title"`
	URL    string     `json:"url_m"`
	Width  flexInt    `json:"width_m"`
	Height flexInt    `json:"height_m"`
}

func (p photo) descriptor() search.Descriptor {
	return search.Descriptor{
		ID:     string(p.ID),
		URL:    p.URL,
		Title:  p.Title,
		Width:  int(p.Width),
		Height: int(p.Height),
	}
}

type photos struct {
	Page    flexInt  `json:"page"`
	Pages   *flexInt `json:"pages"`
	PerPage flexInt  `json:"perpage"`
	Total   flexInt  `json:"total"`
	Photo   []photo  `json:"photo"`
}

type response struct {
	Stat    string  `json:"stat"`
	Code    int     `json:"code"`
	Message string  `json:"message"`
	Photos  *photos `json:"photos"`
}

func (r response) photos(op string) (*photos, error) {
	switch r.Stat {
	case "ok":
	case "fail":
		kind := failure.PermanentRequest
		if transientCodes[r.Code] {
			kind = failure.TransientNetwork
		}
		return nil, failure.Newf(kind, op, "remote error %d: %s", r.Code, r.Message)
	default:
		return nil, failure.Newf(failure.Parse, op, "unexpected stat '%s'", r.Stat)
	}
	if r.Photos == nil {
		return nil, failure.New(failure.Parse, op, "missing 'photos' in response")
	}
	if r.Photos.Pages == nil {
		return nil, failure.New(failure.Parse, op, "missing 'pages' in response")
	}
	return r.Photos, nil
}
