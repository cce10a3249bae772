package gateway

import (
	"fmt"
	"path"
	"strings"

	"github.com/aloksahay/fairbnb-sub000/config"
)

// extension returns the lower-cased extension of name without its dot.
func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// validate checks an upload against the acceptance rules. It is pure: no
// staging, hashing or network activity happens before it passes. An empty
// allow-list disables that rule and a zero MaxSize disables the size limit.
func validate(cfg config.Validation, name string, size uint64, mimeType string) error {
	if cfg.MaxSize > 0 && size > cfg.MaxSize {
		return &ValidationError{Reason: fmt.Sprintf("size %d exceeds limit %d", size, cfg.MaxSize)}
	}

	if len(cfg.MimeTypes) > 0 {
		ok := false
		for _, m := range cfg.MimeTypes {
			if m == mimeType {
				ok = true
				break
			}
		}
		if !ok {
			return &ValidationError{Reason: fmt.Sprintf("mime type %q is not allowed", mimeType)}
		}
	}

	if len(cfg.Extensions) > 0 {
		ext := extension(name)
		ok := false
		for _, e := range cfg.Extensions {
			if strings.ToLower(strings.TrimPrefix(e, ".")) == ext {
				ok = true
				break
			}
		}
		if !ok {
			return &ValidationError{Reason: fmt.Sprintf("extension %q is not allowed", ext)}
		}
	}
	return nil
}
