package domain

// Kind is the generation operation requested by a client.
type Kind string

const (
	KindVideo     Kind = "video"
	KindImage     Kind = "image"
	KindCharacter Kind = "character"
)

// SubMode is derived from which conditioning inputs a request carries.
type SubMode string

const (
	SubModeStandard  SubMode = "standard"
	SubModeReference SubMode = "reference"
	SubModeRemix     SubMode = "remix"
)

// Field names as they appear on the wire.
const (
	FieldPrompt         = "prompt"
	FieldModel          = "model"
	FieldSeconds        = "seconds"
	FieldOrientation    = "orientation"
	FieldSize           = "size"
	FieldStyleID        = "style_id"
	FieldInputImage     = "input_image"
	FieldInputReference = "input_reference"
	FieldRemixTargetID  = "remix_target_id"
	FieldN              = "n"
	FieldResponseFormat = "response_format"
	FieldVideo          = "video"
	FieldTimestamps     = "timestamps"
	FieldUsername       = "username"
	FieldDisplayName    = "display_name"
)

// RequestFields lists every generation field in the order validation reports them.
var RequestFields = []string{
	FieldPrompt,
	FieldModel,
	FieldSeconds,
	FieldOrientation,
	FieldSize,
	FieldStyleID,
	FieldInputImage,
	FieldInputReference,
	FieldRemixTargetID,
	FieldN,
	FieldResponseFormat,
	FieldVideo,
	FieldTimestamps,
	FieldUsername,
	FieldDisplayName,
}

// GenerationJobRequest is the transport-independent form of a submission.
// Seconds, N and Timestamps keep their raw text so that value checks stay in
// the validator.
type GenerationJobRequest struct {
	Kind           Kind
	Prompt         string
	Model          string
	Seconds        string
	Orientation    string
	Size           string
	StyleID        string
	InputImage     []byte
	InputReference []byte
	RemixTargetID  string
	N              string
	ResponseFormat string
	Video          []byte
	Timestamps     string
	Username       string
	DisplayName    string

	// Async asks for a job id instead of waiting on the backend. It is a
	// delivery preference and not part of the field table.
	Async bool
}

// Has reports whether the named field carries a non-empty value.
func (r *GenerationJobRequest) Has(field string) bool {
	switch field {
	case FieldPrompt:
		return r.Prompt != ""
	case FieldModel:
		return r.Model != ""
	case FieldSeconds:
		return r.Seconds != ""
	case FieldOrientation:
		return r.Orientation != ""
	case FieldSize:
		return r.Size != ""
	case FieldStyleID:
		return r.StyleID != ""
	case FieldInputImage:
		return len(r.InputImage) > 0
	case FieldInputReference:
		return len(r.InputReference) > 0
	case FieldRemixTargetID:
		return r.RemixTargetID != ""
	case FieldN:
		return r.N != ""
	case FieldResponseFormat:
		return r.ResponseFormat != ""
	case FieldVideo:
		return len(r.Video) > 0
	case FieldTimestamps:
		return r.Timestamps != ""
	case FieldUsername:
		return r.Username != ""
	case FieldDisplayName:
		return r.DisplayName != ""
	}
	return false
}

// ReferenceImage returns whichever conditioning image was supplied.
func (r *GenerationJobRequest) ReferenceImage() []byte {
	if len(r.InputImage) > 0 {
		return r.InputImage
	}
	return r.InputReference
}

// Timestamps is the identity extraction window of a character video, in seconds.
type Timestamps struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
