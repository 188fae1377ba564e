package hosting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	smtypes "github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
)

// Config holds the credentials and region of the hosting account
type Config struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`

	// Endpoint overrides the service URL (testing against a local emulator)
	Endpoint string `yaml:"endpoint"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("hosting region is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("hosting access key id and secret access key must be set together")
	}
	return nil
}

// SageMaker implements Service on Amazon SageMaker
type SageMaker struct {
	client *sagemaker.Client
}

// NewSageMaker builds a client from explicit configuration. Static
// credentials are used when given; otherwise the default chain applies.
func NewSageMaker(ctx context.Context, cfg Config) (*SageMaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := sagemaker.NewFromConfig(awsCfg, func(o *sagemaker.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &SageMaker{client: client}, nil
}

func (s *SageMaker) CreateModel(ctx context.Context, spec ModelSpec) error {
	_, err := s.client.CreateModel(ctx, &sagemaker.CreateModelInput{
		ModelName: aws.String(spec.Name),
		PrimaryContainer: &smtypes.ContainerDefinition{
			Image:        aws.String(spec.Image),
			ModelDataUrl: aws.String(spec.ModelDataURL),
		},
		ExecutionRoleArn: aws.String(spec.ExecutionRoleARN),
	})
	if err != nil {
		return fmt.Errorf("create model %s: %w", spec.Name, err)
	}
	return nil
}

func (s *SageMaker) CreateServingConfig(ctx context.Context, spec ServingConfigSpec) error {
	_, err := s.client.CreateEndpointConfig(ctx, &sagemaker.CreateEndpointConfigInput{
		EndpointConfigName: aws.String(spec.Name),
		ProductionVariants: []smtypes.ProductionVariant{{
			VariantName:          aws.String(spec.VariantName),
			ModelName:            aws.String(spec.ModelName),
			InitialInstanceCount: aws.Int32(int32(spec.InstanceCount)),
			InstanceType:         smtypes.ProductionVariantInstanceType(spec.InstanceType),
		}},
	})
	if err != nil {
		return fmt.Errorf("create endpoint config %s: %w", spec.Name, err)
	}
	return nil
}

func (s *SageMaker) CreateEndpoint(ctx context.Context, name, configName string) error {
	_, err := s.client.CreateEndpoint(ctx, &sagemaker.CreateEndpointInput{
		EndpointName:       aws.String(name),
		EndpointConfigName: aws.String(configName),
	})
	if err != nil {
		return fmt.Errorf("create endpoint %s: %w", name, err)
	}
	return nil
}

func (s *SageMaker) DescribeEndpoint(ctx context.Context, name string) (string, error) {
	out, err := s.client.DescribeEndpoint(ctx, &sagemaker.DescribeEndpointInput{
		EndpointName: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("describe endpoint %s: %w", name, err)
	}
	return string(out.EndpointStatus), nil
}

func (s *SageMaker) DeleteEndpoint(ctx context.Context, name string) error {
	_, err := s.client.DeleteEndpoint(ctx, &sagemaker.DeleteEndpointInput{EndpointName: aws.String(name)})
	if err != nil {
		return fmt.Errorf("delete endpoint %s: %w", name, err)
	}
	return nil
}

func (s *SageMaker) DeleteServingConfig(ctx context.Context, name string) error {
	_, err := s.client.DeleteEndpointConfig(ctx, &sagemaker.DeleteEndpointConfigInput{EndpointConfigName: aws.String(name)})
	if err != nil {
		return fmt.Errorf("delete endpoint config %s: %w", name, err)
	}
	return nil
}

func (s *SageMaker) DeleteModel(ctx context.Context, name string) error {
	_, err := s.client.DeleteModel(ctx, &sagemaker.DeleteModelInput{ModelName: aws.String(name)})
	if err != nil {
		return fmt.Errorf("delete model %s: %w", name, err)
	}
	return nil
}
