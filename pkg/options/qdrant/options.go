// Package qdrantopts provides options for the Qdrant REST API.
package qdrantopts

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains Qdrant connection configuration.
type Options struct {
	// URL is the REST endpoint, e.g. http://localhost:6333.
	URL string `json:"url" mapstructure:"url"`

	// APIKey is sent as the api-key header when set.
	APIKey string `json:"-" mapstructure:"api-key"`

	// Timeout bounds a single HTTP call.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		URL:     "http://localhost:6333",
		Timeout: 30 * time.Second,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "qdrant."
	fs.StringVar(&o.URL, p+"url", o.URL, "Qdrant REST endpoint.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "Qdrant API key (prefer QDRANT_API_KEY).")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Timeout of a single Qdrant request.")
}

// Complete trims the URL and fills the API key from QDRANT_API_KEY.
func (o *Options) Complete() error {
	o.URL = strings.TrimRight(o.URL, "/")
	if o.APIKey == "" {
		o.APIKey = os.Getenv("QDRANT_API_KEY")
	}
	return nil
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if u, err := url.Parse(o.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("qdrant url %q must be an http(s) URL", o.URL))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("qdrant timeout must be positive"))
	}
	return errs
}
