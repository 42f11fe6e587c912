package bedrock

import (
	"github.com/effective-security/toolagent/pkg/llms/bedrock/internal/bedrockclient"
)

// Option is an option for the Bedrock LLM.
type Option func(*options)

type options struct {
	modelID         string
	region          string
	accessKeyID     string
	secretAccessKey string
	client          bedrockclient.InvokeModelAPI
}

// WithModel sets the model ID, or inference profile, to use.
func WithModel(modelID string) Option {
	return func(o *options) {
		o.modelID = modelID
	}
}

// WithRegion sets the AWS region, otherwise the default config chain is used.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithStaticCredentials uses the access key instead of the default credentials chain.
func WithStaticCredentials(accessKeyID, secretAccessKey string) Option {
	return func(o *options) {
		o.accessKeyID = accessKeyID
		o.secretAccessKey = secretAccessKey
	}
}

// WithClient sets the runtime client, usually *bedrockruntime.Client.
func WithClient(client bedrockclient.InvokeModelAPI) Option {
	return func(o *options) {
		o.client = client
	}
}
