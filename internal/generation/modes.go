package generation

import "gengateway/internal/domain"

type modeKey struct {
	kind domain.Kind
	sub  domain.SubMode
}

// ModeRule lists the fields a (kind, sub-mode) combination accepts.
type ModeRule struct {
	Allowed      map[string]bool
	Required     []string
	DefaultModel string
}

func fieldSet(groups ...[]string) map[string]bool {
	set := map[string]bool{}
	for _, g := range groups {
		for _, f := range g {
			set[f] = true
		}
	}
	return set
}

var (
	videoFields = []string{
		domain.FieldPrompt, domain.FieldModel, domain.FieldSeconds,
		domain.FieldOrientation, domain.FieldSize, domain.FieldStyleID,
	}
	imageFields = []string{
		domain.FieldPrompt, domain.FieldModel, domain.FieldN, domain.FieldResponseFormat,
		domain.FieldSize, domain.FieldOrientation, domain.FieldStyleID,
	}
	referenceFields = []string{domain.FieldInputImage, domain.FieldInputReference}
	remixFields     = []string{
		domain.FieldPrompt, domain.FieldModel, domain.FieldSeconds,
		domain.FieldOrientation, domain.FieldRemixTargetID,
	}
	characterFields = []string{
		domain.FieldModel, domain.FieldVideo, domain.FieldTimestamps,
		domain.FieldUsername, domain.FieldDisplayName,
	}
)

// Default models per kind.
const (
	DefaultVideoModel     = "sora-video-10s"
	DefaultImageModel     = "sora-image"
	DefaultCharacterModel = "sora-video-10s"
)

// modeTable holds one row per supported combination. Adding a mode is adding a row.
var modeTable = map[modeKey]ModeRule{
	{domain.KindVideo, domain.SubModeStandard}: {
		Allowed:      fieldSet(videoFields),
		Required:     []string{domain.FieldPrompt},
		DefaultModel: DefaultVideoModel,
	},
	{domain.KindVideo, domain.SubModeReference}: {
		Allowed:      fieldSet(videoFields, referenceFields),
		Required:     []string{domain.FieldPrompt},
		DefaultModel: DefaultVideoModel,
	},
	{domain.KindVideo, domain.SubModeRemix}: {
		Allowed:      fieldSet(remixFields),
		Required:     []string{domain.FieldPrompt, domain.FieldRemixTargetID},
		DefaultModel: DefaultVideoModel,
	},
	{domain.KindImage, domain.SubModeStandard}: {
		Allowed:      fieldSet(imageFields),
		Required:     []string{domain.FieldPrompt},
		DefaultModel: DefaultImageModel,
	},
	{domain.KindImage, domain.SubModeReference}: {
		Allowed:      fieldSet(imageFields, referenceFields),
		Required:     []string{domain.FieldPrompt},
		DefaultModel: DefaultImageModel,
	},
	{domain.KindCharacter, domain.SubModeStandard}: {
		Allowed:  fieldSet(characterFields),
		Required: []string{domain.FieldModel, domain.FieldVideo, domain.FieldTimestamps, domain.FieldUsername},
	},
}

// LookupMode returns the rule for a combination.
func LookupMode(kind domain.Kind, sub domain.SubMode) (ModeRule, bool) {
	rule, ok := modeTable[modeKey{kind, sub}]
	return rule, ok
}

// DetectSubMode derives the sub-mode from the conditioning inputs present.
func DetectSubMode(req *domain.GenerationJobRequest) domain.SubMode {
	switch {
	case req.Has(domain.FieldRemixTargetID):
		return domain.SubModeRemix
	case req.Has(domain.FieldInputImage) || req.Has(domain.FieldInputReference):
		return domain.SubModeReference
	default:
		return domain.SubModeStandard
	}
}

// subModeTrigger names the field that selected a sub-mode.
func subModeTrigger(req *domain.GenerationJobRequest, sub domain.SubMode) string {
	switch sub {
	case domain.SubModeRemix:
		return domain.FieldRemixTargetID
	case domain.SubModeReference:
		if req.Has(domain.FieldInputImage) {
			return domain.FieldInputImage
		}
		return domain.FieldInputReference
	}
	return ""
}
