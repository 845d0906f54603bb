package email

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

func init() {
	message.CharsetReader = charsetReader
}

// charsetReader decodes input declared in charset to UTF-8.
// An empty charset is treated as UTF-8.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))
	switch charset {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return input, nil
	}

	// Common aliases ianaindex does not know about
	if charset == "gb2312" || charset == "x-gbk" {
		charset = "gbk"
	}

	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf("unhandled charset %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
