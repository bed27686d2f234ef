package generation

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"

	"gengateway/internal/domain"
)

// DefaultMaxMemory bounds how much of a multipart body is held in memory
// before parts spill to temporary files.
const DefaultMaxMemory = 32 << 20

var binaryFields = map[string]bool{
	domain.FieldInputImage:     true,
	domain.FieldInputReference: true,
	domain.FieldVideo:          true,
}

// filePartFields are the only multipart file parts the gateway reads.
var filePartFields = map[string]bool{
	domain.FieldInputReference: true,
	domain.FieldVideo:          true,
}

// Normalize turns a raw request body into a canonical request. It performs
// syntactic decoding only.
func Normalize(kind domain.Kind, body io.Reader, contentType string, maxMemory int64) (*domain.GenerationJobRequest, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, domain.WrapError(domain.KindUnsupportedContentType, "", "content type is missing or malformed", err)
	}
	if maxMemory <= 0 {
		maxMemory = DefaultMaxMemory
	}

	var values map[string]string
	files := map[string][]byte{}
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		values, err = readJSON(body)
	case mediaType == "multipart/form-data":
		values, files, err = readMultipart(body, params["boundary"], maxMemory)
	case mediaType == "application/x-www-form-urlencoded":
		values, err = readForm(body)
	default:
		return nil, domain.NewError(domain.KindUnsupportedContentType, "", fmt.Sprintf("content type %q is not supported", mediaType))
	}
	if err != nil {
		return nil, err
	}

	req := &domain.GenerationJobRequest{Kind: kind}
	for field, raw := range values {
		if binaryFields[field] {
			if _, uploaded := files[field]; uploaded {
				continue
			}
			decoded, derr := decodeBase64(raw)
			if derr != nil {
				return nil, domain.WrapError(domain.KindBadEncoding, field, "field is not valid base64", derr)
			}
			files[field] = decoded
			continue
		}
		assign(req, field, raw)
	}
	req.InputImage = files[domain.FieldInputImage]
	req.InputReference = files[domain.FieldInputReference]
	req.Video = files[domain.FieldVideo]
	req.Async = parseBool(values["async_mode"])
	return req, nil
}

func assign(req *domain.GenerationJobRequest, field, raw string) {
	raw = strings.TrimSpace(raw)
	switch field {
	case domain.FieldPrompt:
		req.Prompt = raw
	case domain.FieldModel:
		req.Model = raw
	case domain.FieldSeconds, "duration":
		if req.Seconds == "" || field == domain.FieldSeconds {
			req.Seconds = raw
		}
	case domain.FieldOrientation:
		req.Orientation = strings.ToLower(raw)
	case domain.FieldSize:
		req.Size = raw
	case domain.FieldStyleID:
		req.StyleID = raw
	case domain.FieldRemixTargetID:
		req.RemixTargetID = raw
	case domain.FieldN:
		req.N = raw
	case domain.FieldResponseFormat:
		req.ResponseFormat = strings.ToLower(raw)
	case domain.FieldTimestamps:
		req.Timestamps = raw
	case domain.FieldUsername:
		req.Username = raw
	case domain.FieldDisplayName:
		req.DisplayName = raw
	}
}

// jsonShape lists the JSON types a field may carry besides a string. Fields
// not listed here must be strings or null.
type jsonShape uint8

const (
	shapeNumber jsonShape = 1 << iota
	shapeBool
	shapeList
)

var jsonShapes = map[string]jsonShape{
	domain.FieldSeconds:    shapeNumber,
	"duration":             shapeNumber,
	domain.FieldN:          shapeNumber,
	domain.FieldTimestamps: shapeNumber | shapeList,
	"async_mode":           shapeBool,
}

// readJSON flattens a JSON object into text values.
func readJSON(body io.Reader) (map[string]string, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, domain.WrapError(domain.KindBadEncoding, "", "request body is not a JSON object", err)
	}
	values := make(map[string]string, len(raw))
	for key, v := range raw {
		text, ok := jsonText(v, jsonShapes[key])
		if !ok {
			return nil, domain.NewError(domain.KindBadEncoding, key, "field has an unexpected JSON type")
		}
		values[key] = text
	}
	return values, nil
}

func jsonText(v any, shape jsonShape) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.Number:
		return t.String(), shape&shapeNumber != 0
	case bool:
		return strconv.FormatBool(t), shape&shapeBool != 0
	case []any:
		if shape&shapeList == 0 {
			return "", false
		}
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := jsonText(item, shape&^shapeList)
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), true
	}
	return "", false
}

func readMultipart(body io.Reader, boundary string, maxMemory int64) (map[string]string, map[string][]byte, error) {
	if boundary == "" {
		return nil, nil, domain.NewError(domain.KindBadEncoding, "", "multipart boundary is missing")
	}
	form, err := multipart.NewReader(body, boundary).ReadForm(maxMemory)
	if err != nil {
		return nil, nil, domain.WrapError(domain.KindBadEncoding, "", "multipart body is malformed", err)
	}
	defer func() { _ = form.RemoveAll() }()

	values := make(map[string]string, len(form.Value))
	for key, vs := range form.Value {
		if len(vs) > 0 {
			values[key] = vs[0]
		}
	}
	files := map[string][]byte{}
	for key, headers := range form.File {
		if !filePartFields[key] || len(headers) == 0 {
			continue
		}
		data, rerr := readFileHeader(headers[0])
		if rerr != nil {
			return nil, nil, domain.WrapError(domain.KindBadEncoding, key, "file part could not be read", rerr)
		}
		files[key] = data
	}
	return values, files, nil
}

func readFileHeader(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func readForm(body io.Reader) (map[string]string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.WrapError(domain.KindBadEncoding, "", "form body could not be read", err)
	}
	parsed, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, domain.WrapError(domain.KindBadEncoding, "", "form body is malformed", err)
	}
	values := make(map[string]string, len(parsed))
	for key := range parsed {
		values[key] = parsed.Get(key)
	}
	return values, nil
}

var errEmptyPayload = errors.New("empty payload")

// decodeBase64 accepts standard and URL alphabets, with or without padding,
// and an optional data URL prefix.
func decodeBase64(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 || !strings.Contains(s[:idx], ";base64") {
			return nil, errors.New("data url is not base64 encoded")
		}
		s = s[idx+1:]
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, nil
	}
	encodings := []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding}
	var lastErr error
	for _, enc := range encodings {
		out, err := enc.DecodeString(s)
		if err == nil {
			if len(bytes.TrimSpace(out)) == 0 {
				return nil, errEmptyPayload
			}
			return out, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}
