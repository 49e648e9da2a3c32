package env

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the given dotenv files into the process environment.
// Variables that are already set win, and missing files are skipped.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}

		return fmt.Errorf("load %s: %w", f, err)
	}

	return nil
}

func RequireString(key string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		panic(fmt.Sprintf("environment variable %q is required", key))
	}

	return val
}

func String(key, def string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	return val
}

// Strings splits a comma separated value, dropping empty items.
func Strings(key string, def []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}

func Int(key string, def int) int {
	return parse(key, def, strconv.Atoi)
}

func Int64(key string, def int64) int64 {
	return parse(key, def, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

func Bool(key string, def bool) bool {
	return parse(key, def, strconv.ParseBool)
}

func Float64(key string, def float64) float64 {
	return parse(key, def, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

func Duration(key string, def time.Duration) time.Duration {
	return parse(key, def, time.ParseDuration)
}

// Location resolves an IANA time zone name, falling back to def.
func Location(key string, def *time.Location) *time.Location {
	return parse(key, def, time.LoadLocation)
}

func Url(key string, def *url.URL) *url.URL {
	return parse(key, def, func(s string) (*url.URL, error) {
		u, err := url.Parse(s)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" {
			return nil, fmt.Errorf("missing scheme in %q", s)
		}
		return u, nil
	})
}

func parse[T any](key string, def T, fn func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	val, err := fn(strings.TrimSpace(raw))
	if err != nil {
		return def
	}

	return val
}
