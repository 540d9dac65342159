package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// TokenSource supplies an API token from outside the process.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ssmAPI is the subset of *ssm.Client used here.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// tokenPayload is the JSON shape stored in the parameter.
type tokenPayload struct {
	Token string `json:"token"`
}

// ParamStoreSource reads a {"token": "..."} SecureString parameter.
type ParamStoreSource struct {
	api  ssmAPI
	name string
}

// NewParamStoreSource creates a source over an existing SSM API client.
func NewParamStoreSource(api ssmAPI, name string) (*ParamStoreSource, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: parameter name is required")
	}
	return &ParamStoreSource{api: api, name: name}, nil
}

// NewDefaultParamStoreSource loads the default AWS configuration chain and
// returns a source reading the named parameter.
func NewDefaultParamStoreSource(ctx context.Context, name string) (*ParamStoreSource, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("paramstore: load AWS config: %w", err)
	}
	return NewParamStoreSource(ssm.NewFromConfig(awsCfg), name)
}

// Token fetches and decodes the parameter.
func (p *ParamStoreSource) Token(ctx context.Context) (string, error) {
	withDecryption := true
	name := p.name
	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}

	var tp tokenPayload
	if err := json.Unmarshal([]byte(*out.Parameter.Value), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal token value as JSON: %w", err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", errors.New("paramstore: token is empty")
	}
	return tp.Token, nil
}
