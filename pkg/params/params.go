// Package params parses the argument list of a fetch command into a
// validated transfer request. Arguments arrive as a comma-separated list of
// double-quoted strings; positional method and URL come first, followed by
// curl-style option pairs.
package params

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hollowaylabs/atfetch/pkg/config"
	"github.com/hollowaylabs/atfetch/pkg/core"
)

const maxURLLength = 2048

var rangePattern = regexp.MustCompile(`^(\d+)-(\d+)$`)

// fields is the validation view of the positional arguments
type fields struct {
	Method string `validate:"required,oneof=GET POST HEAD"`
	URL    string `validate:"required,url,max=2048"`
}

// Parser turns argument lists into transfer requests, applying the
// configured limits
type Parser struct {
	cfg      *config.Config
	validate *validator.Validate
}

// NewParser creates a parser bound to the given configuration
func NewParser(cfg *config.Config) *Parser {
	return &Parser{cfg: cfg, validate: validator.New()}
}

// SplitArgs tokenizes a comma-separated list of double-quoted strings.
// Backslash escapes the next character inside quotes. Unquoted or trailing
// garbage is an error.
func SplitArgs(s string) ([]string, error) {
	var args []string
	i := 0
	for {
		if i >= len(s) {
			return nil, fmt.Errorf("expected quoted argument at position %d", i)
		}
		if s[i] != '"' {
			return nil, fmt.Errorf("argument must start with a quote at position %d", i)
		}
		i++

		var b strings.Builder
		closed := false
		for i < len(s) {
			c := s[i]
			if c == '\\' && i+1 < len(s) {
				b.WriteByte(s[i+1])
				i += 2
				continue
			}
			if c == '"' {
				closed = true
				i++
				break
			}
			b.WriteByte(c)
			i++
		}
		if !closed {
			return nil, fmt.Errorf("unterminated quoted argument")
		}
		args = append(args, b.String())

		if i == len(s) {
			return args, nil
		}
		if s[i] != ',' {
			return nil, fmt.Errorf("expected comma at position %d", i)
		}
		i++
	}
}

// Parse builds a transfer request from the raw argument list of a fetch
// command. The returned request carries the configured default timeout;
// callers may override it before submission.
func (p *Parser) Parse(raw string) (*core.TransferRequest, error) {
	args, err := SplitArgs(raw)
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, fmt.Errorf("method and url are required")
	}

	f := fields{Method: strings.ToUpper(args[0]), URL: args[1]}
	if err := p.validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid method or url: %w", err)
	}
	if !strings.HasPrefix(f.URL, "http://") && !strings.HasPrefix(f.URL, "https://") {
		return nil, fmt.Errorf("url scheme must be http or https")
	}
	if len(f.URL) > maxURLLength {
		return nil, fmt.Errorf("url exceeds %d bytes", maxURLLength)
	}

	req := &core.TransferRequest{
		ID:      uuid.NewString(),
		Method:  core.Method(f.Method),
		URL:     f.URL,
		Upload:  core.Upload{Kind: core.UploadNone},
		Timeout: p.cfg.Timeout(),
	}
	if err := p.parseOptions(req, args[2:]); err != nil {
		return nil, err
	}

	if req.Upload.Kind != core.UploadNone && req.Method != core.MethodPost {
		return nil, fmt.Errorf("-du is only valid for POST")
	}
	if req.IsRange() && req.Method != core.MethodGet {
		return nil, fmt.Errorf("-r is only valid for GET")
	}
	return req, nil
}

func (p *Parser) parseOptions(req *core.TransferRequest, opts []string) error {
	for i := 0; i < len(opts); i++ {
		switch opts[i] {
		case "-v":
			req.Verbose = true
		case "-H":
			value, err := optValue(opts, &i)
			if err != nil {
				return err
			}
			if !strings.Contains(value, ":") {
				return fmt.Errorf("header %q is not a Name: value pair", value)
			}
			if len(req.Headers) >= p.cfg.Transfer.MaxHeaders {
				return fmt.Errorf("too many headers, limit is %d", p.cfg.Transfer.MaxHeaders)
			}
			req.Headers = append(req.Headers, value)
		case "-du":
			value, err := optValue(opts, &i)
			if err != nil {
				return err
			}
			if err := p.parseUpload(req, value); err != nil {
				return err
			}
		case "-dd":
			value, err := optValue(opts, &i)
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("-dd requires a file path")
			}
			req.DownloadPath = value
		case "-r":
			value, err := optValue(opts, &i)
			if err != nil {
				return err
			}
			if err := parseRange(req, value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown option %q", opts[i])
		}
	}
	return nil
}

func (p *Parser) parseUpload(req *core.TransferRequest, value string) error {
	if req.Upload.Kind != core.UploadNone {
		return fmt.Errorf("duplicate -du")
	}
	if strings.HasPrefix(value, "@") {
		path := value[1:]
		if path == "" {
			return fmt.Errorf("-du @ requires a file path")
		}
		req.Upload = core.Upload{Kind: core.UploadFile, Path: path}
		return nil
	}

	size, err := strconv.ParseInt(value, 10, 64)
	if err != nil || size < 0 {
		return fmt.Errorf("-du requires a byte count or @file, got %q", value)
	}
	if size > p.cfg.Transfer.MaxSerialUpload {
		return fmt.Errorf("upload size %d exceeds limit %d", size, p.cfg.Transfer.MaxSerialUpload)
	}
	req.Upload = core.Upload{Kind: core.UploadSerial, Size: size}
	return nil
}

func parseRange(req *core.TransferRequest, value string) error {
	m := rangePattern.FindStringSubmatch(value)
	if m == nil {
		return fmt.Errorf("-r requires start-end, got %q", value)
	}
	start, err1 := strconv.ParseInt(m[1], 10, 64)
	end, err2 := strconv.ParseInt(m[2], 10, 64)
	if err1 != nil || err2 != nil || start > end {
		return fmt.Errorf("invalid range %q", value)
	}
	req.Range = value
	return nil
}

func optValue(opts []string, i *int) (string, error) {
	if *i+1 >= len(opts) {
		return "", fmt.Errorf("option %s requires a value", opts[*i])
	}
	*i++
	return opts[*i], nil
}
