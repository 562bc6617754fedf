// Package config loads the settings of the server from an optional .env
// file and PINPHOTOS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"bitbucket.org/kleinnic74/pinphotos/assets"
	"bitbucket.org/kleinnic74/pinphotos/search"
	"bitbucket.org/kleinnic74/pinphotos/search/flickr"
)

const envPrefix = "PINPHOTOS_"

type Config struct {
	LibDir              string        `json:"libdir" validate:"required"`
	Port                uint          `json:"port" validate:"min=1,max=65535"`
	DevMode             bool          `json:"devMode"`
	FlickrAPIKey        string        `json:"-" validate:"required"`
	FlickrBaseURL       string        `json:"flickrBaseURL" validate:"required,url"`
	PageSize            int           `json:"pageSize" validate:"min=1,max=500"`
	MaxResults          int           `json:"maxResults" validate:"gtefield=PageSize"`
	BoxHalfWidth        float64       `json:"boxHalfWidth" validate:"gt=0,lte=180"`
	BoxHalfHeight       float64       `json:"boxHalfHeight" validate:"gt=0,lte=90"`
	SearchRPS           float64       `json:"searchRPS" validate:"gt=0"`
	SearchBurst         int           `json:"searchBurst" validate:"min=1"`
	HTTPTimeout         time.Duration `json:"httpTimeout" validate:"gt=0"`
	FetchMaxBytes       int64         `json:"fetchMaxBytes" validate:"min=1"`
	Workers             int           `json:"workers" validate:"min=1"`
	PrefetchParallelism int           `json:"prefetchParallelism" validate:"min=1"`
	SearchRetries       int           `json:"searchRetries" validate:"min=1"`
	SearchBackoff       time.Duration `json:"searchBackoff" validate:"gte=0"`
	MDNSName            string        `json:"mdnsName"`
}

// Default returns the configuration used for every key which is not set
func Default() Config {
	return Config{
		LibDir:              "pinphotos",
		Port:                8080,
		FlickrBaseURL:       flickr.DefaultBaseURL,
		PageSize:            search.DefaultPageSize,
		MaxResults:          search.DefaultMaxResults,
		BoxHalfWidth:        search.DefaultHalfWidth,
		BoxHalfHeight:       search.DefaultHalfHeight,
		SearchRPS:           1,
		SearchBurst:         2,
		HTTPTimeout:         15 * time.Second,
		FetchMaxBytes:       assets.DefaultMaxBytes,
		Workers:             4,
		PrefetchParallelism: 4,
		SearchRetries:       3,
		SearchBackoff:       200 * time.Millisecond,
	}
}

type lookupFunc func(key string) (string, bool)

// Load reads envFile (if it exists) and the environment. Values from the
// environment win over values from the file.
func Load(envFile string) (*Config, error) {
	fromFile := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
		if values != nil {
			fromFile = values
		}
	}
	return load(func(key string) (string, bool) {
		if v, found := os.LookupEnv(key); found {
			return v, true
		}
		v, found := fromFile[key]
		return v, found
	})
}

func load(lookup lookupFunc) (*Config, error) {
	cfg := Default()
	r := reader{lookup: lookup}
	r.string("LIB_DIR", &cfg.LibDir)
	r.uint("PORT", &cfg.Port)
	r.bool("DEV_MODE", &cfg.DevMode)
	r.string("FLICKR_API_KEY", &cfg.FlickrAPIKey)
	r.string("FLICKR_BASE_URL", &cfg.FlickrBaseURL)
	r.int("PAGE_SIZE", &cfg.PageSize)
	r.int("MAX_RESULTS", &cfg.MaxResults)
	r.float("BBOX_HALF_WIDTH", &cfg.BoxHalfWidth)
	r.float("BBOX_HALF_HEIGHT", &cfg.BoxHalfHeight)
	r.float("SEARCH_RPS", &cfg.SearchRPS)
	r.int("SEARCH_BURST", &cfg.SearchBurst)
	r.duration("HTTP_TIMEOUT", &cfg.HTTPTimeout)
	r.int64("FETCH_MAX_BYTES", &cfg.FetchMaxBytes)
	r.int("WORKERS", &cfg.Workers)
	r.int("PREFETCH_PARALLELISM", &cfg.PrefetchParallelism)
	r.int("SEARCH_RETRIES", &cfg.SearchRetries)
	r.duration("SEARCH_BACKOFF", &cfg.SearchBackoff)
	r.string("MDNS_NAME", &cfg.MDNSName)
	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		msgs := make([]string, len(fieldErrs))
		for i, e := range fieldErrs {
			msgs[i] = fmt.Sprintf("%s fails '%s'", e.Field(), e.Tag())
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
	}
	return nil
}

type reader struct {
	lookup lookupFunc
	errs   []error
}

func (r *reader) get(key string) (string, bool) {
	v, found := r.lookup(envPrefix + key)
	if !found || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r *reader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
}

func (r *reader) string(key string, dst *string) {
	if v, found := r.get(key); found {
		*dst = v
	}
}

func (r *reader) bool(key string, dst *bool) {
	if v, found := r.get(key); found {
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = b
	}
}

func (r *reader) int(key string, dst *int) {
	if v, found := r.get(key); found {
		i, err := strconv.Atoi(v)
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = i
	}
}

func (r *reader) int64(key string, dst *int64) {
	if v, found := r.get(key); found {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = i
	}
}

func (r *reader) uint(key string, dst *uint) {
	if v, found := r.get(key); found {
		i, err := strconv.ParseUint(v, 10, 0)
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = uint(i)
	}
}

func (r *reader) float(key string, dst *float64) {
	if v, found := r.get(key); found {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = f
	}
}

func (r *reader) duration(key string, dst *time.Duration) {
	if v, found := r.get(key); found {
		d, err := time.ParseDuration(v)
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = d
	}
}
