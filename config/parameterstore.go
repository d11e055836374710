package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/cenkalti/backoff/v4"
)

// ParameterGetter is the subset of the SSM client used for endpoint overrides.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Parameter names looked up under ExchangeConfig.ParameterPrefix.
const (
	ParamRESTBaseURL      = "rest_base_url"
	ParamWSURL            = "ws_url"
	ParamAnnouncementsURL = "announcements_url"
)

// NewParameterStore builds an SSM client from the default AWS credential chain.
func NewParameterStore(ctx context.Context) (*ssm.Client, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctxWithTimeout)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return ssm.NewFromConfig(awsCfg), nil
}

// ApplyParameterStore overrides endpoint URLs with values found under the
// configured prefix. Missing parameters leave the current value untouched.
func ApplyParameterStore(ctx context.Context, cfg *Config, getter ParameterGetter) error {
	prefix := strings.TrimRight(cfg.Exchange.ParameterPrefix, "/")
	if prefix == "" {
		return nil
	}

	targets := map[string]*string{
		ParamRESTBaseURL:      &cfg.Exchange.REST.BaseURL,
		ParamWSURL:            &cfg.Exchange.WS.URL,
		ParamAnnouncementsURL: &cfg.Exchange.REST.AnnouncementsURL,
	}
	for name, dst := range targets {
		value, err := getParameterStoreValue(ctx, getter, prefix+"/"+name, false)
		if err != nil {
			return err
		}
		if value != "" {
			*dst = value
		}
	}
	return nil
}

// ApplyParameterStoreRetry runs ApplyParameterStore with exponential backoff
// starting at interval, making at most attempts calls. notify may be nil.
func ApplyParameterStoreRetry(ctx context.Context, cfg *Config, getter ParameterGetter,
	attempts uint64, interval time.Duration, notify backoff.Notify) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(interval),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.RetryNotify(func() error {
		return ApplyParameterStore(ctx, cfg, getter)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, attempts-1), ctx), notify)
}

func getParameterStoreValue(ctx context.Context, getter ParameterGetter, parameterName string, decrypt bool) (string, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := getter.GetParameter(ctxWithTimeout, &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("get parameter %s: %w", parameterName, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", nil
	}

	return *result.Parameter.Value, nil
}
