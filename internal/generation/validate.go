package generation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gengateway/internal/domain"
)

// CharacterResolver looks up committed characters by handle.
type CharacterResolver interface {
	Resolve(ctx context.Context, username string) (*domain.Character, error)
}

// ValidatedRequest is a request that passed the field table and value checks.
type ValidatedRequest struct {
	domain.GenerationJobRequest
	SubMode    domain.SubMode
	SecondsInt int
	Count      int
	Window     domain.Timestamps
	Cameos     []domain.Character
}

// Validator applies the mode table to canonical requests.
type Validator struct {
	Characters CharacterResolver
}

// Limits on numeric fields.
const (
	MaxSeconds    = 60
	MaxImageCount = 4
)

var (
	handlePattern   = regexp.MustCompile(`(?:^|\s)@([A-Za-z0-9_][A-Za-z0-9_.]*)`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.]{2,31}$`)
	sizePattern     = regexp.MustCompile(`^[0-9]{2,5}x[0-9]{2,5}$`)
)

var orientations = map[string]bool{"landscape": true, "portrait": true, "square": true}

var responseFormats = map[string]bool{"url": true, "base64": true, "b64_json": true}

// Validate checks req against its (kind, sub-mode) row and resolves any
// @handle references in the prompt.
func (v *Validator) Validate(ctx context.Context, req *domain.GenerationJobRequest) (*ValidatedRequest, error) {
	if req == nil {
		return nil, domain.NewError(domain.KindMissingField, "", "request is empty")
	}
	if req.Has(domain.FieldInputImage) && req.Has(domain.FieldInputReference) {
		return nil, domain.NewError(domain.KindUnsupportedField, domain.FieldInputReference,
			"input_image and input_reference are mutually exclusive")
	}

	sub := DetectSubMode(req)
	rule, ok := LookupMode(req.Kind, sub)
	if !ok {
		field := subModeTrigger(req, sub)
		return nil, domain.NewError(domain.KindUnsupportedField, field,
			fmt.Sprintf("%s does not support %s mode", req.Kind, sub))
	}
	for _, field := range domain.RequestFields {
		if req.Has(field) && !rule.Allowed[field] {
			return nil, domain.NewError(domain.KindUnsupportedField, field,
				fmt.Sprintf("field is not accepted for %s %s requests", req.Kind, sub))
		}
	}
	for _, field := range rule.Required {
		if !req.Has(field) {
			return nil, domain.NewError(domain.KindMissingField, field, "field is required")
		}
	}

	out := &ValidatedRequest{GenerationJobRequest: *req, SubMode: sub}
	if out.Model == "" {
		out.Model = rule.DefaultModel
	}
	if err := checkValues(out); err != nil {
		return nil, err
	}

	cameos, err := v.resolveHandles(ctx, req.Prompt)
	if err != nil {
		return nil, err
	}
	out.Cameos = cameos
	return out, nil
}

func checkValues(r *ValidatedRequest) error {
	if r.Orientation != "" && !orientations[r.Orientation] {
		return domain.NewError(domain.KindInvalidValue, domain.FieldOrientation, "orientation must be landscape, portrait or square")
	}
	if r.Size != "" && !sizePattern.MatchString(strings.ToLower(r.Size)) {
		return domain.NewError(domain.KindInvalidValue, domain.FieldSize, "size must look like 1280x720")
	}
	if r.Seconds != "" {
		n, err := strconv.Atoi(r.Seconds)
		if err != nil || n <= 0 || n > MaxSeconds {
			return domain.NewError(domain.KindInvalidValue, domain.FieldSeconds,
				fmt.Sprintf("seconds must be an integer between 1 and %d", MaxSeconds))
		}
		r.SecondsInt = n
	}
	r.Count = 1
	if r.N != "" {
		n, err := strconv.Atoi(r.N)
		if err != nil || n < 1 || n > MaxImageCount {
			return domain.NewError(domain.KindInvalidValue, domain.FieldN,
				fmt.Sprintf("n must be an integer between 1 and %d", MaxImageCount))
		}
		r.Count = n
	}
	if r.ResponseFormat != "" && !responseFormats[r.ResponseFormat] {
		return domain.NewError(domain.KindInvalidValue, domain.FieldResponseFormat, "response_format must be url or base64")
	}
	if r.Timestamps != "" {
		window, err := ParseTimestamps(r.Timestamps)
		if err != nil {
			return domain.WrapError(domain.KindInvalidValue, domain.FieldTimestamps, "timestamps must be two numbers like 0,3", err)
		}
		r.Window = window
	}
	if r.Username != "" && !usernamePattern.MatchString(r.Username) {
		return domain.NewError(domain.KindInvalidValue, domain.FieldUsername,
			"username must be 3-32 letters, digits, underscores or dots")
	}
	return nil
}

// ParseTimestamps reads an "start,end" pair of offsets in seconds. Ordering
// is checked by the registry.
func ParseTimestamps(raw string) (domain.Timestamps, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(raw), "[]"), ",")
	if len(parts) != 2 {
		return domain.Timestamps{}, errors.New("expected exactly two values")
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.Timestamps{}, err
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.Timestamps{}, err
	}
	if !finite(start) || !finite(end) {
		return domain.Timestamps{}, errors.New("offsets must be finite numbers")
	}
	return domain.Timestamps{Start: start, End: end}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Handles extracts the distinct @handles of a prompt in order of appearance.
func Handles(prompt string) []string {
	matches := handlePattern.FindAllStringSubmatch(prompt, -1)
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		h := strings.TrimRight(m[1], ".")
		key := strings.ToLower(h)
		if h == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}

func (v *Validator) resolveHandles(ctx context.Context, prompt string) ([]domain.Character, error) {
	handles := Handles(prompt)
	if len(handles) == 0 {
		return nil, nil
	}
	if v.Characters == nil {
		return nil, domain.NewError(domain.KindUnknownCharacter, domain.FieldPrompt,
			fmt.Sprintf("character @%s does not exist", handles[0]))
	}
	out := make([]domain.Character, 0, len(handles))
	for _, h := range handles {
		c, err := v.Characters.Resolve(ctx, h)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.KindUnknownCharacter, domain.FieldPrompt,
				fmt.Sprintf("character @%s does not exist", h))
		}
		if err != nil {
			return nil, fmt.Errorf("resolve @%s: %w", h, err)
		}
		out = append(out, *c)
	}
	return out, nil
}
