// Package vertexclient wraps the Vertex AI prediction service. It is
// used for the legacy predict endpoints, mainly text embeddings, which
// the genai SDK does not cover.
package vertexclient

import (
	"context"
	"fmt"
	"runtime"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	// ErrMissingValue is returned when a value is missing in a prediction.
	ErrMissingValue = errors.New("missing value")
	// ErrInvalidValue is returned when a prediction value has an
	// unexpected type.
	ErrInvalidValue = errors.New("invalid value")
)

var defaultParameters = map[string]any{
	"temperature":     0.2, //nolint:gomnd
	"maxOutputTokens": 256, //nolint:gomnd
	"topP":            0.8, //nolint:gomnd
	"topK":            40,  //nolint:gomnd
}

const (
	embeddingModelName = "text-embedding-005"

	defaultMaxConns = 4
)

// Client is a Vertex AI prediction service client.
type Client struct {
	client    *aiplatform.PredictionClient
	projectID string
	location  string
}

// New returns a new prediction client for the given project and region.
func New(ctx context.Context, projectID, location string, opts ...option.ClientOption) (*Client, error) {
	numConns := runtime.GOMAXPROCS(0)
	if numConns > defaultMaxConns {
		numConns = defaultMaxConns
	}
	o := []option.ClientOption{
		option.WithGRPCConnectionPool(numConns),
		option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", location)),
	}
	opts = append(o, opts...)
	// PredictionClient only supports GRPC.
	opts = append(opts, option.WithHTTPClient(nil))

	client, err := aiplatform.NewPredictionClient(ctx, opts...)
	if err != nil {
		return nil, llms.Wrap(llms.ErrAuthentication, err, "failed to create prediction client")
	}
	return &Client{
		client:    client,
		projectID: projectID,
		location:  location,
	}, nil
}

// Close releases the underlying GRPC connections.
func (c *Client) Close() error {
	return c.client.Close()
}

// EmbeddingRequest is a request to create embeddings.
type EmbeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

// CreateEmbedding creates one embedding vector per input text.
func (c *Client) CreateEmbedding(ctx context.Context, r *EmbeddingRequest) ([][]float32, error) {
	model := r.Model
	if model == "" {
		model = embeddingModelName
	}
	responses, err := c.batchPredict(ctx, model, r.Input, map[string]any{})
	if err != nil {
		return nil, err
	}

	embeddings := [][]float32{}
	for _, res := range responses {
		value := res.GetStructValue().AsMap()
		embedding, ok := value["embeddings"].(map[string]any)
		if !ok {
			return nil, errors.WithMessage(ErrMissingValue, "unexpected embeddings type")
		}
		values, ok := embedding["values"].([]any)
		if !ok {
			return nil, errors.WithMessage(ErrMissingValue, "unexpected values type")
		}
		floatValues := make([]float32, 0, len(values))
		for _, v := range values {
			val, ok := v.(float32)
			if !ok {
				valF64, ok := v.(float64)
				if !ok {
					return nil, errors.WithMessagef(ErrInvalidValue, "values is not a float64 or float32, it is a %T", v)
				}
				val = float32(valF64)
			}
			floatValues = append(floatValues, val)
		}
		embeddings = append(embeddings, floatValues)
	}
	return embeddings, nil
}

func mergeParams(params map[string]any) *structpb.Struct {
	mergedParams := map[string]any{}
	for paramKey, paramValue := range defaultParameters {
		mergedParams[paramKey] = paramValue
	}
	for paramKey, paramValue := range params {
		switch value := paramValue.(type) {
		case float64:
			if value != 0 {
				mergedParams[paramKey] = value
			}
		case int:
			if value != 0 {
				mergedParams[paramKey] = value
			}
		case int32:
			if value != 0 {
				mergedParams[paramKey] = value
			}
		case int64:
			if value != 0 {
				mergedParams[paramKey] = value
			}
		case []any:
			mergedParams[paramKey] = value
		}
	}
	out, err := structpb.NewStruct(mergedParams)
	if err != nil {
		out, _ = structpb.NewStruct(defaultParameters)
	}
	return out
}

func (c *Client) batchPredict(ctx context.Context, model string, prompts []string, params map[string]any) ([]*structpb.Value, error) {
	mergedParams := mergeParams(params)
	instances := make([]*structpb.Value, 0, len(prompts))
	for _, prompt := range prompts {
		content, _ := structpb.NewStruct(map[string]any{
			"content": prompt,
		})
		instances = append(instances, structpb.NewStructValue(content))
	}
	resp, err := c.client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   c.publisherModelPath("google", model),
		Instances:  instances,
		Parameters: structpb.NewStructValue(mergedParams),
	})
	if err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "prediction failed")
	}
	if len(resp.GetPredictions()) == 0 {
		return nil, errors.WithStack(llms.ErrEmptyResponse)
	}
	return resp.GetPredictions(), nil
}

func (c *Client) publisherModelPath(publisher, model string) string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/%s/models/%s",
		c.projectID, c.location, publisher, model)
}
