package pipeline

import (
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"

	"github.com/subtitler/pipeline/errors"
)

// choicesSchemaDefinition constrains the user_choices accepted at task
// creation, grounded on the teacher's inline gojsonschema.NewStringLoader
// idiom in handlers/handlers.go's UploadVOD schema.
const choicesSchemaDefinition = `{
	"type": "object",
	"properties": {
		"source_lang": { "type": "string", "minLength": 1 },
		"target_lang": { "type": "string" },
		"create_burned_video": { "type": "boolean" },
		"transcription_model": { "type": "string", "enum": ["", "tiny", "base", "small", "medium", "large"] },
		"translator_backend": { "type": "string", "enum": ["", "simple", "llm"] },
		"transcription_only": { "type": "boolean" },
		"watermark": {
			"type": ["object", "null"],
			"properties": {
				"logo_path": { "type": "string", "minLength": 1 },
				"position": { "type": "string", "enum": ["tl", "tr", "bl", "br"] },
				"size": { "type": "string", "enum": ["small", "medium", "large"] },
				"opacity": { "type": "integer", "minimum": 0, "maximum": 100 }
			},
			"required": ["logo_path", "position", "size", "opacity"]
		}
	},
	"required": ["source_lang"],
	"additionalProperties": false
}`

var choicesSchema = mustCompileSchema(choicesSchemaDefinition)

func mustCompileSchema(definition string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(definition))
	if err != nil {
		panic(err) // fix schema text
	}
	return schema
}

// choicesDocument is the JSON-shaped view of Choices validated against
// choicesSchema; Choices itself has no json tags since it is never
// marshalled on the wire, only validated at the task-creation boundary.
type choicesDocument struct {
	SourceLang         string      `json:"source_lang"`
	TargetLang         string      `json:"target_lang,omitempty"`
	CreateBurnedVideo  bool        `json:"create_burned_video,omitempty"`
	TranscriptionModel string      `json:"transcription_model"`
	TranslatorBackend  string      `json:"translator_backend"`
	TranscriptionOnly  bool        `json:"transcription_only,omitempty"`
	Watermark          interface{} `json:"watermark,omitempty"`
}

// ValidateChoices rejects malformed user_choices before a task is ever
// registered (§6's task submission contract implies this boundary check;
// components downstream assume Choices is well-formed).
func ValidateChoices(c Choices) error {
	doc := choicesDocument{
		SourceLang:         c.SourceLang,
		TargetLang:         c.TargetLang,
		CreateBurnedVideo:  c.CreateBurnedVideo,
		TranscriptionModel: c.TranscriptionModel,
		TranslatorBackend:  c.TranslatorBackend,
		TranscriptionOnly:  c.TranscriptionOnly,
	}
	if c.Watermark != nil {
		doc.Watermark = map[string]interface{}{
			"logo_path": c.Watermark.LogoPath,
			"position":  string(c.Watermark.Position),
			"size":      string(c.Watermark.Size),
			"opacity":   c.Watermark.Opacity,
		}
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return errors.Newf(errors.InvalidInput, err, "failed marshalling choices for validation")
	}
	result, err := choicesSchema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return errors.Newf(errors.InvalidInput, err, "failed validating choices")
	}
	if !result.Valid() {
		return errors.New(errors.InvalidInput, describeValidationErrors(result), nil)
	}
	return nil
}

func describeValidationErrors(result *gojsonschema.Result) string {
	msg := "invalid choices:"
	for _, e := range result.Errors() {
		msg += " " + e.String() + ";"
	}
	return msg
}
