package oracle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/psychro/internal/observability"
	"github.com/RMahshie/psychro/pkg/models"
)

// OpenAIConfig holds configuration for the OpenAI extractor
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	BaseURL     string
}

// OpenAIExtractor implements Extractor with an OpenAI vision model and a
// strict JSON schema response format.
type OpenAIExtractor struct {
	client      openai.Client
	model       string
	temperature float64
	schema      interface{}
	metrics     *observability.Metrics
}

// responseSchema reflects the JSON schema the model must answer with.
func responseSchema() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v Response
	return reflector.Reflect(v)
}

// NewOpenAIExtractor creates an extractor. The SDK's automatic retries are
// disabled: a failed call surfaces as a TransportError.
func NewOpenAIExtractor(cfg OpenAIConfig, metrics *observability.Metrics) (*OpenAIExtractor, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4o)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIExtractor{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		schema:      responseSchema(),
		metrics:     metrics,
	}, nil
}

// Extract sends the photo (and exemplar) to the model and decodes the answer.
func (e *OpenAIExtractor) Extract(ctx context.Context, image models.Image, exemplar *Exemplar) (models.Reading, error) {
	req := BuildRequest(image, exemplar)

	content := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Parts))
	for _, p := range req.Parts {
		switch p.Kind {
		case PartText:
			content = append(content, openai.TextContentPart(p.Text))
		case PartImage:
			content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL:    dataURL(*p.Image),
				Detail: "high",
			}))
		}
	}

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "psychrometer_reading",
		Description: openai.String("Dry-bulb and wet-bulb readings of a psychrometer photo"),
		Schema:      e.schema,
		Strict:      openai.Bool(true),
	}

	start := time.Now()
	chat, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(content),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
		Model:       openai.ChatModel(e.model),
		Temperature: openai.Float(e.temperature),
		Seed:        openai.Int(7),
	})
	e.metrics.OracleDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Reading{}, &TransportError{Err: fmt.Errorf("%w: %v", ctxErr, err)}
		}
		return models.Reading{}, &TransportError{Err: err}
	}

	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return models.Reading{}, fmt.Errorf("%w: empty completion", ErrMalformedResponse)
	}

	raw := chat.Choices[0].Message.Content
	reading, err := DecodeResponse([]byte(raw))
	if err != nil {
		log.Warn().Err(err).Str("raw", raw).Msg("Oracle response rejected")
		return models.Reading{}, err
	}

	log.Info().
		Float64("dryTemp", reading.DryTemp).
		Float64("wetTemp", reading.WetTemp).
		Bool("withExemplar", exemplar != nil).
		Dur("latency", time.Since(start)).
		Msg("Reading extracted")
	return reading, nil
}

func dataURL(image models.Image) string {
	return "data:" + image.MimeType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
}
